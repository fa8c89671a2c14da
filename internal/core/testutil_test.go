package core

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/llmwui/llm-wui/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}
