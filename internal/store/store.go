// Package store persists users, chats and per-user settings.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by mutations that target a row that does not exist.
// Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// Repository is implemented by the sqlite and Postgres stores.
type Repository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetChat returns (nil, nil) when the owner has no chat with that id.
	GetChat(ctx context.Context, owner string, chatID int64) (*Chat, error)

	// SaveChat inserts the chat or replaces its content in one statement.
	// Title and created_at are kept from the first write.
	SaveChat(ctx context.Context, chat *Chat) error

	// ListChats returns the owner's chats, newest first.
	ListChats(ctx context.Context, owner string) ([]ChatSummary, error)

	// DeleteChat returns ErrNotFound when nothing was deleted.
	DeleteChat(ctx context.Context, owner string, chatID int64) error

	GetSettings(ctx context.Context, owner string) (*UserSettings, error)
	UpsertSettings(ctx context.Context, settings *UserSettings) error

	Ping(ctx context.Context) error
	Close() error
}

// Open picks the Postgres store for postgres:// URLs and sqlite otherwise.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := NewSQLiteStore(databaseURL)
	if err != nil {
		return nil, err
	}
	return lite, nil
}
