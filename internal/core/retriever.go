package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/llmwui/llm-wui/internal/vectorindex"
)

const DefaultTopK = 5

type RetrievedChunk struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Retriever ranks chunks against a query using a per-call index.
type Retriever struct {
	embedder Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

func NewRetriever(embedder Embedder, timeout time.Duration, logger *slog.Logger) *Retriever {
	return &Retriever{embedder: embedder, timeout: timeout, logger: logger}
}

// Retrieve returns up to k chunks most similar to query, best first. Any
// embedding or indexing failure is logged and yields no chunks.
func (r *Retriever) Retrieve(ctx context.Context, chunks []string, query string, k int) []RetrievedChunk {
	if len(chunks) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultTopK
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, chunks...)
	texts = append(texts, query)

	vectors, err := r.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		r.logger.Warn("retrieval skipped: embedding failed", "chunks", len(chunks), "error", err)
		return nil
	}
	if len(vectors) != len(texts) {
		r.logger.Warn("retrieval skipped: embedding count mismatch", "want", len(texts), "got", len(vectors))
		return nil
	}

	queryVec := vectors[len(vectors)-1]
	index, err := vectorindex.New(len(queryVec))
	if err != nil {
		r.logger.Warn("retrieval skipped: empty query embedding", "error", err)
		return nil
	}
	if err := index.Add(chunks, vectors[:len(chunks)]); err != nil {
		r.logger.Warn("retrieval skipped: indexing failed", "error", err)
		return nil
	}

	hits, err := index.Search(queryVec, k)
	if err != nil {
		r.logger.Warn("retrieval skipped: search failed", "error", err)
		return nil
	}

	out := make([]RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = RetrievedChunk{Text: h.Text, Score: h.Score}
	}
	r.logger.Debug("retrieved chunks", "candidates", len(chunks), "returned", len(out))
	return out
}
