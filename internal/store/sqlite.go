package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if err := migrateSQLite(dataSourceName); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY under concurrent merges.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// User methods
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Chat methods
func (s *SQLiteStore) GetChat(ctx context.Context, owner string, chatID int64) (*Chat, error) {
	var chat Chat
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT chat_id, owner, title, content, created_at FROM chats WHERE owner = ? AND chat_id = ?",
		owner, chatID).Scan(&chat.ID, &chat.Owner, &chat.Title, &content, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.Content = []byte(content)
	return &chat, nil
}

func (s *SQLiteStore) SaveChat(ctx context.Context, chat *Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	chat.CreatedAt = chat.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO chats (owner, chat_id, title, content, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (owner, chat_id) DO UPDATE SET content = excluded.content`,
		chat.Owner, chat.ID, chat.Title, string(chat.Content), chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, owner string) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, title, created_at FROM chats WHERE owner = ? ORDER BY created_at DESC, chat_id DESC",
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []ChatSummary{}
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, owner string, chatID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE owner = ? AND chat_id = ?", owner, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Settings methods
func (s *SQLiteStore) GetSettings(ctx context.Context, owner string) (*UserSettings, error) {
	settings := UserSettings{Owner: owner}
	err := s.db.QueryRowContext(ctx,
		"SELECT llm_endpoint, search_endpoint, theme FROM user_settings WHERE owner = ?",
		owner).Scan(&settings.LLMEndpoint, &settings.SearchEndpoint, &settings.Theme)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (s *SQLiteStore) UpsertSettings(ctx context.Context, settings *UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_settings (owner, llm_endpoint, search_endpoint, theme)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (owner) DO UPDATE SET
            llm_endpoint = excluded.llm_endpoint,
            search_endpoint = excluded.search_endpoint,
            theme = excluded.theme`,
		settings.Owner, settings.LLMEndpoint, settings.SearchEndpoint, settings.Theme)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
