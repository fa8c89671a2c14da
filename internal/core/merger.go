package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/llmwui/llm-wui/internal/store"
)

const emptyChatContent = `{"messages": []}`

// StoredMessage is the shape of one element of a chat's messages array.
type StoredMessage struct {
	ID          int64    `json:"id"`
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

type MergeInput struct {
	Owner         string
	ChatID        int64
	SequenceID    int64
	UserText      string
	Attachments   []string
	AssistantText string
}

// Merger appends turn pairs to persisted chats. Merges on the same chat are
// serialized in-process; each merge is written with a single upsert.
type Merger struct {
	repo   store.Repository
	locks  *keyLock
	logger *slog.Logger
	now    func() time.Time
}

func NewMerger(repo store.Repository, logger *slog.Logger) *Merger {
	return &Merger{repo: repo, locks: newKeyLock(), logger: logger, now: time.Now}
}

// Merge gets or creates the chat, repairs a malformed log, appends the user
// message then the assistant message, and saves. It is not idempotent.
func (m *Merger) Merge(ctx context.Context, in MergeInput) (*store.Chat, error) {
	unlock := m.locks.Lock(in.Owner + "/" + strconv.FormatInt(in.ChatID, 10))
	defer unlock()

	chat, err := m.repo.GetChat(ctx, in.Owner, in.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		chat = &store.Chat{
			ID:        in.ChatID,
			Owner:     in.Owner,
			Title:     in.UserText,
			Content:   json.RawMessage(emptyChatContent),
			CreatedAt: m.now(),
		}
	}

	doc, messages := m.decodeContent(chat)

	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	userMsg, err := marshalMessage(StoredMessage{ID: in.SequenceID, Role: RoleUser, Content: in.UserText, Attachments: attachments})
	if err != nil {
		return nil, err
	}
	assistantMsg, err := marshalMessage(StoredMessage{ID: in.SequenceID + 1, Role: RoleAssistant, Content: in.AssistantText})
	if err != nil {
		return nil, err
	}
	messages = append(messages, userMsg, assistantMsg)

	doc["messages"] = joinRaw('[', messages, ']')
	content, err := encodeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat content: %w", err)
	}
	chat.Content = content

	if err := m.repo.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to save chat: %w", err)
	}
	return chat, nil
}

// decodeContent returns the content document and its messages array. A
// document that is not an object, or whose messages is not an array, is
// reset to an empty log.
func (m *Merger) decodeContent(chat *store.Chat) (map[string]json.RawMessage, []json.RawMessage) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(chat.Content, &doc); err != nil || doc == nil {
		m.logger.Warn("repairing chat content: not a JSON object", "owner", chat.Owner, "chat_id", chat.ID)
		return map[string]json.RawMessage{}, []json.RawMessage{}
	}

	raw, ok := doc["messages"]
	if !ok {
		m.logger.Warn("repairing chat content: messages missing", "owner", chat.Owner, "chat_id", chat.ID)
		return doc, []json.RawMessage{}
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil || messages == nil {
		m.logger.Warn("repairing chat content: messages is not a list", "owner", chat.Owner, "chat_id", chat.ID)
		return doc, []json.RawMessage{}
	}
	return doc, messages
}

func marshalMessage(msg StoredMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeDocument writes doc with sorted keys. Values are copied verbatim;
// json.Marshal would re-compact them.
func encodeDocument(doc map[string]json.RawMessage) (json.RawMessage, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		field := append(append(name, ':'), doc[k]...)
		fields = append(fields, field)
	}
	return joinRaw('{', fields, '}'), nil
}

func joinRaw(start byte, parts []json.RawMessage, end byte) json.RawMessage {
	out := []byte{start}
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p...)
	}
	return append(out, end)
}

// ParseMessages decodes the messages of a stored chat, skipping elements
// that do not look like messages.
func ParseMessages(content json.RawMessage) []StoredMessage {
	var doc struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil
	}
	out := make([]StoredMessage, 0, len(doc.Messages))
	for _, raw := range doc.Messages {
		var msg StoredMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Role == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}
