package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/llmwui/llm-wui/internal/store"
)

// FileSource reads a user's uploaded attachments from scratch storage.
type FileSource interface {
	Get(ctx context.Context, owner, name string) ([]byte, error)
}

// PipelineOptions tunes the send pipeline.
type PipelineOptions struct {
	DefaultModel          string
	ChunkSize             int
	ChunkOverlap          int
	TopK                  int
	SearchTopN            int
	MaxDocumentChunks     int
	MaxRawAttachmentChars int
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		DefaultModel:          "llama3",
		ChunkSize:             DefaultChunkSize,
		ChunkOverlap:          DefaultChunkOverlap,
		TopK:                  DefaultTopK,
		SearchTopN:            DefaultSearchTopN,
		MaxDocumentChunks:     DefaultMaxDocumentChunks,
		MaxRawAttachmentChars: DefaultMaxRawAttachmentChars,
	}
}

type SendRequest struct {
	ChatID      int64
	Counter     int64
	SearchWeb   bool
	Model       string
	Message     string
	Attachments []string
}

type SendResult struct {
	Chat            *store.Chat
	Reply           string
	Search          Status // ok, unavailable, or "" when not requested
	RetrievedChunks int
}

type ChatService struct {
	repo      store.Repository
	settings  *SettingsService
	llm       *LLMService
	searcher  *WebSearcher
	retriever *Retriever
	merger    *Merger
	files     FileSource
	opts      PipelineOptions
	logger    *slog.Logger
}

func NewChatService(
	repo store.Repository,
	settings *SettingsService,
	llm *LLMService,
	searcher *WebSearcher,
	retriever *Retriever,
	merger *Merger,
	files FileSource,
	opts PipelineOptions,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		repo:      repo,
		settings:  settings,
		llm:       llm,
		searcher:  searcher,
		retriever: retriever,
		merger:    merger,
		files:     files,
		opts:      opts,
		logger:    logger,
	}
}

// Send runs one chat interaction: extract attachments, retrieve and search
// concurrently, compose, call the LLM, then merge the turn pair into the chat.
// Only the LLM call can fail the interaction.
func (s *ChatService) Send(ctx context.Context, owner string, req SendRequest) (*SendResult, error) {
	log := s.logger.With("owner", owner, "chat_id", req.ChatID)

	settings, err := s.settings.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	history, err := s.history(ctx, owner, req.ChatID)
	if err != nil {
		return nil, err
	}

	attachments := s.extractAttachments(ctx, owner, req.Attachments)

	var (
		outcome   SearchOutcome
		retrieved []RetrievedChunk
	)
	g, gctx := errgroup.WithContext(ctx)
	if req.SearchWeb {
		g.Go(func() error {
			outcome = s.searcher.Search(gctx, settings.SearchEndpoint, req.Message, s.opts.SearchTopN)
			return nil
		})
	}
	if len(attachments) > 0 {
		g.Go(func() error {
			retrieved = s.retrieve(gctx, attachments, req.Message)
			return nil
		})
	}
	_ = g.Wait()

	model := req.Model
	if model == "" {
		model = s.opts.DefaultModel
	}
	completion := Compose(PromptInput{
		Model:                 model,
		History:               history,
		Message:               req.Message,
		SearchResults:         outcome.Results,
		Chunks:                retrieved,
		Attachments:           attachments,
		MaxDocumentChunks:     s.opts.MaxDocumentChunks,
		MaxRawAttachmentChars: s.opts.MaxRawAttachmentChars,
	})

	reply, err := s.llm.Generate(ctx, settings.LLMEndpoint, completion)
	if err != nil {
		log.Error("llm call failed", "model", model, "error", err)
		return nil, err
	}

	chat, err := s.merger.Merge(ctx, MergeInput{
		Owner:         owner,
		ChatID:        req.ChatID,
		SequenceID:    req.Counter,
		UserText:      req.Message,
		Attachments:   req.Attachments,
		AssistantText: reply,
	})
	if err != nil {
		return nil, err
	}

	log.Info("chat message handled", "model", model, "search", outcome.Status, "chunks", len(retrieved))
	return &SendResult{Chat: chat, Reply: reply, Search: outcome.Status, RetrievedChunks: len(retrieved)}, nil
}

func (s *ChatService) history(ctx context.Context, owner string, chatID int64) ([]Turn, error) {
	chat, err := s.repo.GetChat(ctx, owner, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		return nil, nil
	}
	messages := ParseMessages(chat.Content)
	turns := make([]Turn, len(messages))
	for i, m := range messages {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

func (s *ChatService) extractAttachments(ctx context.Context, owner string, names []string) []Attachment {
	out := make([]Attachment, 0, len(names))
	for _, name := range names {
		data, err := s.files.Get(ctx, owner, name)
		if err != nil {
			s.logger.Warn("attachment unreadable", "owner", owner, "file", name, "error", err)
			out = append(out, Attachment{Name: name, Text: fmt.Sprintf("[Error reading %s: %v]", name, err)})
			continue
		}
		out = append(out, Attachment{Name: name, Text: Extract(data, filepath.Ext(name))})
	}
	return out
}

func (s *ChatService) retrieve(ctx context.Context, attachments []Attachment, query string) []RetrievedChunk {
	var chunks []string
	for _, a := range attachments {
		parts, err := Chunk(a.Text, s.opts.ChunkSize, s.opts.ChunkOverlap)
		if err != nil {
			s.logger.Warn("chunking skipped", "file", a.Name, "error", err)
			continue
		}
		chunks = append(chunks, parts...)
	}
	return s.retriever.Retrieve(ctx, chunks, query, s.opts.TopK)
}

func (s *ChatService) ListChats(ctx context.Context, owner string) ([]store.ChatSummary, error) {
	return s.repo.ListChats(ctx, owner)
}

// LoadChat returns the chat and its parsed messages, or ErrChatNotFound.
func (s *ChatService) LoadChat(ctx context.Context, owner string, chatID int64) (*store.Chat, []StoredMessage, error) {
	chat, err := s.repo.GetChat(ctx, owner, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, ErrChatNotFound
	}
	return chat, ParseMessages(chat.Content), nil
}

func (s *ChatService) DeleteChat(ctx context.Context, owner string, chatID int64) error {
	err := s.repo.DeleteChat(ctx, owner, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}

// ListModels lists the models available at the owner's LLM endpoint.
func (s *ChatService) ListModels(ctx context.Context, owner string) ([]string, error) {
	settings, err := s.settings.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.llm.ListModels(ctx, settings.LLMEndpoint)
}
