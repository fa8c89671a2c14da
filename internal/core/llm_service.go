package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultLLMTimeout = 5 * time.Minute

// LLMService talks to an Ollama-compatible inference server. The endpoint is
// passed per call since every user configures their own.
type LLMService struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewLLMService(client *http.Client, timeout time.Duration, logger *slog.Logger) *LLMService {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMService{client: client, timeout: timeout, logger: logger}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate streams a completion and returns the concatenated text once a
// chunk with done=true arrives. A stream that ends first is ErrIncompleteStream.
func (s *LLMService) Generate(ctx context.Context, endpoint string, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Model: req.Model, Prompt: req.Prompt, Stream: true})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(endpoint, "/api/generate"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: generate returned status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out strings.Builder
	dec := json.NewDecoder(resp.Body)
	for {
		var chunk generateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w after %d bytes", ErrIncompleteStream, out.Len())
			}
			return "", fmt.Errorf("%w: %v", ErrIncompleteStream, err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrUpstreamUnavailable, chunk.Error)
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			s.logger.Debug("llm stream complete", "model", req.Model, "chars", out.Len())
			return out.String(), nil
		}
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names the server has pulled.
func (s *LLMService) ListModels(ctx context.Context, endpoint string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL(endpoint, "/api/tags"), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: tags returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode tags: %v", ErrUpstreamUnavailable, err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func apiURL(endpoint, path string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/") + path
}
