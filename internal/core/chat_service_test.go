package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/llmwui/llm-wui/internal/store"
)

type fakeFiles struct {
	files map[string][]byte
}

func (f fakeFiles) Get(_ context.Context, owner, name string) ([]byte, error) {
	data, ok := f.files[owner+"/"+name]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

// fakeBackend serves /api/generate and /search and records the last prompt.
type fakeBackend struct {
	mu         sync.Mutex
	lastPrompt string
	stream     []string
	searches   int
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/generate":
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.lastPrompt = req.Prompt
		lines := b.stream
		b.mu.Unlock()
		for _, l := range lines {
			io.WriteString(w, l+"\n")
		}
	case "/api/tags":
		io.WriteString(w, `{"models":[{"name":"llama3"}]}`)
	case "/search":
		b.mu.Lock()
		b.searches++
		b.mu.Unlock()
		io.WriteString(w, `{"results":[{"title":"Paris - Wikipedia","url":"https://en.wikipedia.org/wiki/Paris","content":"Paris is the capital of France.","engine":"wikipedia"}]}`)
	default:
		http.NotFound(w, r)
	}
}

type serviceFixture struct {
	svc     *ChatService
	repo    store.Repository
	backend *fakeBackend
}

func newServiceFixture(t *testing.T, files map[string][]byte) *serviceFixture {
	t.Helper()
	backend := &fakeBackend{stream: []string{`{"response":"Paris","done":false}`, `{"response":".","done":true}`}}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	repo := newTestRepo(t)
	settings := NewSettingsService(repo)
	endpoint := srv.URL
	if _, err := settings.Update(context.Background(), "u1", SettingsUpdate{LLMEndpoint: &endpoint, SearchEndpoint: &endpoint}); err != nil {
		t.Fatal(err)
	}

	logger := discardLogger()
	svc := NewChatService(
		repo,
		settings,
		NewLLMService(srv.Client(), time.Second, logger),
		NewWebSearcher(srv.Client(), time.Second, logger),
		NewRetriever(&keywordEmbedder{vocab: []string{"France", "capital", "bread"}}, time.Second, logger),
		NewMerger(repo, logger),
		fakeFiles{files: files},
		DefaultPipelineOptions(),
		logger,
	)
	return &serviceFixture{svc: svc, repo: repo, backend: backend}
}

func TestSendCapitalOfFrance(t *testing.T) {
	f := newServiceFixture(t, nil)

	res, err := f.svc.Send(context.Background(), "u1", SendRequest{ChatID: 7, Counter: 1, Message: "What is the capital of France?"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.Reply != "Paris." {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.Search != "" || f.backend.searches != 0 {
		t.Errorf("search should not run when not requested")
	}

	prompt := f.backend.lastPrompt
	if n := countLinesWithPrefix(prompt, "User:"); n != 1 {
		t.Errorf("expected one User: line, got %d", n)
	}
	if !strings.HasSuffix(prompt, "Assistant:\n") {
		t.Error("prompt must end with Assistant:\\n")
	}

	_, msgs, err := f.svc.LoadChat(context.Background(), "u1", 7)
	if err != nil {
		t.Fatalf("LoadChat failed: %v", err)
	}
	if len(msgs) != 2 ||
		msgs[0].Role != RoleUser || msgs[0].Content != "What is the capital of France?" ||
		msgs[1].Role != RoleAssistant || msgs[1].Content != "Paris." {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestSendUsesHistorySearchAndAttachments(t *testing.T) {
	doc := strings.Repeat("Bread is baked daily. ", 60) + "The capital of France is Paris."
	f := newServiceFixture(t, map[string][]byte{"u1/notes.txt": []byte(doc)})
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, "u1", SendRequest{ChatID: 1, Counter: 1, Message: "hello"}); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Send(ctx, "u1", SendRequest{
		ChatID: 1, Counter: 3, SearchWeb: true,
		Message:     "What is the capital of France?",
		Attachments: []string{"notes.txt"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.Search != StatusOK || res.RetrievedChunks == 0 {
		t.Errorf("expected search ok and chunks, got %+v", res)
	}

	prompt := f.backend.lastPrompt
	for _, want := range []string{"User: hello", "Assistant: Paris.", "https://en.wikipedia.org/wiki/Paris", "```documents", "The capital of France is Paris."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	_, msgs, _ := f.svc.LoadChat(ctx, "u1", 1)
	if len(msgs) != 4 || msgs[2].ID != 3 || msgs[3].ID != 4 || len(msgs[2].Attachments) != 1 {
		t.Errorf("unexpected log %+v", msgs)
	}
}

func TestSendDegradesOnMissingAttachmentAndSearch(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	empty := ""
	if _, err := f.svc.settings.Update(ctx, "u1", SettingsUpdate{SearchEndpoint: &empty}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Send(ctx, "u1", SendRequest{ChatID: 2, Counter: 1, SearchWeb: true, Message: "q", Attachments: []string{"gone.pdf"}})
	if err != nil {
		t.Fatalf("Send should degrade, got %v", err)
	}
	if res.Search != StatusUnavailable {
		t.Errorf("expected search unavailable, got %s", res.Search)
	}
	if !strings.Contains(f.backend.lastPrompt, "[Error reading gone.pdf") {
		t.Error("missing attachment should surface as placeholder text")
	}
}

func TestSendFailsOnIncompleteStreamWithoutMerging(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.backend.stream = []string{`{"response":"Par","done":false}`}
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "u1", SendRequest{ChatID: 5, Counter: 1, Message: "q"})
	if !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("expected ErrIncompleteStream, got %v", err)
	}
	if _, _, err := f.svc.LoadChat(ctx, "u1", 5); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("failed send must not create the chat, got %v", err)
	}
}

func TestDeleteAndListChats(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		if _, err := f.svc.Send(ctx, "u1", SendRequest{ChatID: id, Counter: 1, Message: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := f.svc.ListChats(ctx, "u1")
	if err != nil || len(chats) != 2 {
		t.Fatalf("ListChats = %+v, %v", chats, err)
	}
	if err := f.svc.DeleteChat(ctx, "u1", 1); err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if err := f.svc.DeleteChat(ctx, "u1", 1); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
	if StatusOf(ErrChatNotFound) != StatusNotFound {
		t.Error("ErrChatNotFound should map to not_found")
	}
}

func TestListModelsUsesOwnerEndpoint(t *testing.T) {
	f := newServiceFixture(t, nil)
	models, err := f.svc.ListModels(context.Background(), "u1")
	if err != nil || len(models) != 1 || models[0] != "llama3" {
		t.Errorf("ListModels = %v, %v", models, err)
	}
}
