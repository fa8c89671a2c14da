package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string    `json:"id"` // UUID
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// Chat is one conversation of one owner. Content holds the JSON document
// {"messages": [...]} exactly as it was last written.
type Chat struct {
	ID        int64           `json:"id"`
	Owner     string          `json:"-"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

type ChatSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type UserSettings struct {
	Owner          string `json:"-"`
	LLMEndpoint    string `json:"llm_endpoint"`
	SearchEndpoint string `json:"search_endpoint"`
	Theme          string `json:"theme"` // "light" or "dark"
}
