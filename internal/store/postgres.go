package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the Repository used when DATABASE_URL is a postgres:// URL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if err := migratePostgres(databaseURL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE username = $1", username)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, owner string, chatID int64) (*Chat, error) {
	var chat Chat
	var content string
	err := s.pool.QueryRow(ctx,
		"SELECT chat_id, owner, title, content, created_at FROM chats WHERE owner = $1 AND chat_id = $2",
		owner, chatID).Scan(&chat.ID, &chat.Owner, &chat.Title, &content, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.Content = []byte(content)
	return &chat, nil
}

func (s *PostgresStore) SaveChat(ctx context.Context, chat *Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	chat.CreatedAt = chat.CreatedAt.UTC()
	_, err := s.pool.Exec(ctx, `
        INSERT INTO chats (owner, chat_id, title, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (owner, chat_id) DO UPDATE SET content = EXCLUDED.content`,
		chat.Owner, chat.ID, chat.Title, string(chat.Content), chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChats(ctx context.Context, owner string) ([]ChatSummary, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT chat_id, title, created_at FROM chats WHERE owner = $1 ORDER BY created_at DESC, chat_id DESC",
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

func (s *PostgresStore) DeleteChat(ctx context.Context, owner string, chatID int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chats WHERE owner = $1 AND chat_id = $2", owner, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetSettings(ctx context.Context, owner string) (*UserSettings, error) {
	settings := UserSettings{Owner: owner}
	err := s.pool.QueryRow(ctx,
		"SELECT llm_endpoint, search_endpoint, theme FROM user_settings WHERE owner = $1",
		owner).Scan(&settings.LLMEndpoint, &settings.SearchEndpoint, &settings.Theme)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, settings *UserSettings) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO user_settings (owner, llm_endpoint, search_endpoint, theme)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (owner) DO UPDATE SET
            llm_endpoint = EXCLUDED.llm_endpoint,
            search_endpoint = EXCLUDED.search_endpoint,
            theme = EXCLUDED.theme`,
		settings.Owner, settings.LLMEndpoint, settings.SearchEndpoint, settings.Theme)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
