package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/llmwui/llm-wui/internal/store"
)

const (
	DefaultLLMEndpoint    = "http://localhost:11434"
	DefaultSearchEndpoint = "http://localhost:8888"
	DefaultTheme          = "dark"
)

// SettingsUpdate carries the fields a user may change. Nil fields are kept.
type SettingsUpdate struct {
	LLMEndpoint    *string `json:"llm_endpoint"`
	SearchEndpoint *string `json:"search_endpoint"`
	Theme          *string `json:"theme"`
}

type SettingsService struct {
	repo store.Repository
}

func NewSettingsService(repo store.Repository) *SettingsService {
	return &SettingsService{repo: repo}
}

func DefaultSettings(owner string) *store.UserSettings {
	return &store.UserSettings{
		Owner:          owner,
		LLMEndpoint:    DefaultLLMEndpoint,
		SearchEndpoint: DefaultSearchEndpoint,
		Theme:          DefaultTheme,
	}
}

// Get returns the owner's settings, creating the defaults on first access.
func (s *SettingsService) Get(ctx context.Context, owner string) (*store.UserSettings, error) {
	settings, err := s.repo.GetSettings(ctx, owner)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	settings = DefaultSettings(owner)
	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, owner string, upd SettingsUpdate) (*store.UserSettings, error) {
	settings, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if upd.LLMEndpoint != nil {
		if err := validateEndpoint(*upd.LLMEndpoint, false); err != nil {
			return nil, fmt.Errorf("%w: llm_endpoint: %v", ErrInvalidSettings, err)
		}
		settings.LLMEndpoint = strings.TrimSpace(*upd.LLMEndpoint)
	}
	if upd.SearchEndpoint != nil {
		// An empty search endpoint disables web search.
		if err := validateEndpoint(*upd.SearchEndpoint, true); err != nil {
			return nil, fmt.Errorf("%w: search_endpoint: %v", ErrInvalidSettings, err)
		}
		settings.SearchEndpoint = strings.TrimSpace(*upd.SearchEndpoint)
	}
	if upd.Theme != nil {
		switch *upd.Theme {
		case "light", "dark":
			settings.Theme = *upd.Theme
		default:
			return nil, fmt.Errorf("%w: theme must be light or dark", ErrInvalidSettings)
		}
	}

	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func validateEndpoint(raw string, allowEmpty bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
