package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/llmwui/llm-wui/internal/store"
)

func decodeMessages(t *testing.T, content json.RawMessage) []json.RawMessage {
	t.Helper()
	var doc struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		t.Fatalf("content is not valid JSON: %v (%s)", err, content)
	}
	return doc.Messages
}

func TestMergeCreatesChat(t *testing.T) {
	repo := newTestRepo(t)
	m := NewMerger(repo, discardLogger())
	ctx := context.Background()

	chat, err := m.Merge(ctx, MergeInput{
		Owner: "u1", ChatID: 7, SequenceID: 1,
		UserText:      "What is the capital of France?",
		AssistantText: "Paris.",
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if chat.Title != "What is the capital of France?" {
		t.Errorf("title = %q", chat.Title)
	}

	stored, err := repo.GetChat(ctx, "u1", 7)
	if err != nil || stored == nil {
		t.Fatalf("chat not persisted: %v", err)
	}
	msgs := ParseMessages(stored.Content)
	want := []StoredMessage{
		{ID: 1, Role: RoleUser, Content: "What is the capital of France?", Attachments: []string{}},
		{ID: 2, Role: RoleAssistant, Content: "Paris."},
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %+v", msgs)
	}
	for i := range want {
		if msgs[i].ID != want[i].ID || msgs[i].Role != want[i].Role || msgs[i].Content != want[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestMergeAppendsAndKeepsExistingBytes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	existing := `{"id": 1, "role": "user", "content": "<b>hi</b>",   "extra": true}`
	seed := &store.Chat{ID: 3, Owner: "u1", Title: "seed", Content: json.RawMessage(`{"messages": [` + existing + `], "meta": {"pinned": true}}`)}
	if err := repo.SaveChat(ctx, seed); err != nil {
		t.Fatal(err)
	}

	m := NewMerger(repo, discardLogger())
	chat, err := m.Merge(ctx, MergeInput{Owner: "u1", ChatID: 3, SequenceID: 2, UserText: "again", Attachments: []string{"a.pdf"}, AssistantText: "ok"})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if chat.Title != "seed" {
		t.Errorf("title must not change on append, got %q", chat.Title)
	}

	msgs := decodeMessages(t, chat.Content)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if string(msgs[0]) != existing {
		t.Errorf("existing message changed:\n got %s\nwant %s", msgs[0], existing)
	}
	if !strings.Contains(string(chat.Content), `"meta":{"pinned": true}`) {
		t.Errorf("other keys should be kept, content: %s", chat.Content)
	}
	parsed := ParseMessages(chat.Content)
	if parsed[1].Attachments[0] != "a.pdf" || parsed[2].ID != 3 {
		t.Errorf("unexpected appended messages %+v", parsed[1:])
	}
}

func TestMergeRepairsMalformedContent(t *testing.T) {
	for name, content := range map[string]string{
		"not an object":      `[1,2,3]`,
		"messages missing":   `{"other": 1}`,
		"messages not array": `{"messages": "oops"}`,
		"invalid json":       `{"messages": [`,
	} {
		t.Run(name, func(t *testing.T) {
			repo := newTestRepo(t)
			ctx := context.Background()
			if err := repo.SaveChat(ctx, &store.Chat{ID: 1, Owner: "u", Title: "t", Content: json.RawMessage(content)}); err != nil {
				t.Fatal(err)
			}

			chat, err := NewMerger(repo, discardLogger()).Merge(ctx, MergeInput{Owner: "u", ChatID: 1, SequenceID: 10, UserText: "q", AssistantText: "a"})
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			if msgs := decodeMessages(t, chat.Content); len(msgs) != 2 {
				t.Errorf("expected log reset to 2 messages, got %d", len(msgs))
			}
		})
	}
}

func TestMergeIsNotIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	m := NewMerger(repo, discardLogger())
	in := MergeInput{Owner: "u", ChatID: 1, SequenceID: 1, UserText: "q", AssistantText: "a"}

	for i := 0; i < 2; i++ {
		if _, err := m.Merge(context.Background(), in); err != nil {
			t.Fatal(err)
		}
	}
	chat, _ := repo.GetChat(context.Background(), "u", 1)
	if n := len(ParseMessages(chat.Content)); n != 4 {
		t.Errorf("expected 4 messages after two merges, got %d", n)
	}
}

func TestMergeConcurrentSameChat(t *testing.T) {
	repo := newTestRepo(t)
	m := NewMerger(repo, discardLogger())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Merge(context.Background(), MergeInput{
				Owner: "u", ChatID: 9, SequenceID: int64(i * 2),
				UserText: fmt.Sprintf("q%d", i), AssistantText: "a",
			})
			if err != nil {
				t.Errorf("Merge %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	chat, _ := repo.GetChat(context.Background(), "u", 9)
	if got := len(ParseMessages(chat.Content)); got != 2*n {
		t.Errorf("lost updates: expected %d messages, got %d", 2*n, got)
	}
}
