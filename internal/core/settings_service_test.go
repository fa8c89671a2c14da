package core

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestSettingsGetCreatesDefaults(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewSettingsService(repo)

	got, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *DefaultSettings("u1") {
		t.Errorf("got %+v, want defaults", got)
	}

	stored, err := repo.GetSettings(context.Background(), "u1")
	if err != nil || stored == nil {
		t.Fatalf("defaults were not persisted: %v", err)
	}
}

func TestSettingsUpdate(t *testing.T) {
	svc := NewSettingsService(newTestRepo(t))
	ctx := context.Background()

	got, err := svc.Update(ctx, "u1", SettingsUpdate{Theme: strPtr("light"), LLMEndpoint: strPtr(" http://gpu-box:11434 ")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Theme != "light" || got.LLMEndpoint != "http://gpu-box:11434" || got.SearchEndpoint != DefaultSearchEndpoint {
		t.Errorf("unexpected settings %+v", got)
	}

	again, _ := svc.Get(ctx, "u1")
	if *again != *got {
		t.Errorf("update not persisted: %+v", again)
	}
}

func TestSettingsUpdateRejectsInvalid(t *testing.T) {
	svc := NewSettingsService(newTestRepo(t))
	tests := map[string]SettingsUpdate{
		"theme":       {Theme: strPtr("solarized")},
		"llm scheme":  {LLMEndpoint: strPtr("ftp://host")},
		"llm empty":   {LLMEndpoint: strPtr("")},
		"search host": {SearchEndpoint: strPtr("http://")},
	}
	for name, upd := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), "u1", upd)
			if !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
			if StatusOf(err) != StatusInvalid {
				t.Errorf("unexpected status %s", StatusOf(err))
			}
		})
	}
}
