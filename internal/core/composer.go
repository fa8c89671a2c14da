package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultMaxDocumentChunks     = 5
	DefaultMaxRawAttachmentChars = 12000

	chunkDelimiter = "\n-----\n"

	systemPreamble = "You are a helpful assistant in a web chat application. " +
		"Answer the latest user message, taking the earlier conversation and any context below into account.\n" +
		"Write your answer in Markdown: use short paragraphs, bullet lists and fenced code blocks where they help. " +
		"Do not invent facts; if you are unsure, say so."

	citationInstructions = "Instructions for the search results above:\n" +
		"1. Use the key information from the search results to answer.\n" +
		"2. Cite every source you rely on inline as a markdown link in the form [Title](URL).\n" +
		"3. If the search results don't provide enough information, say so."
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Attachment struct {
	Name string
	Text string
}

type PromptInput struct {
	Model         string
	History       []Turn
	Message       string
	SearchResults []SearchResult
	Chunks        []RetrievedChunk
	// Attachments is only rendered when Chunks is empty.
	Attachments []Attachment

	MaxDocumentChunks     int
	MaxRawAttachmentChars int
}

type CompletionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// Compose assembles the single prompt sent to the LLM. It does no I/O.
func Compose(in PromptInput) CompletionRequest {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	if len(in.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range in.History {
			b.WriteString(speaker(t.Role))
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(in.Message)
	b.WriteString("\n\n")

	if len(in.SearchResults) > 0 {
		b.WriteString("Here are the top web search results (in JSON):\n")
		b.WriteString(searchResultsJSON(in.SearchResults))
		b.WriteString("\n\n")
		b.WriteString(citationInstructions)
		b.WriteString("\n\n")
	}

	switch {
	case len(in.Chunks) > 0:
		writeDocumentChunks(&b, in.Chunks, orDefault(in.MaxDocumentChunks, DefaultMaxDocumentChunks))
	case len(in.Attachments) > 0:
		writeRawAttachments(&b, in.Attachments, orDefault(in.MaxRawAttachmentChars, DefaultMaxRawAttachmentChars))
	}

	b.WriteString("Assistant:\n")
	return CompletionRequest{Model: in.Model, Prompt: b.String()}
}

func speaker(r Role) string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

func searchResultsJSON(results []SearchResult) string {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		// SearchResult only has string fields.
		return "[]"
	}
	return string(out)
}

func writeDocumentChunks(b *strings.Builder, chunks []RetrievedChunk, limit int) {
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	b.WriteString("Relevant excerpts from the user's attached documents:\n")
	b.WriteString("```documents\n")
	b.WriteString(strings.Join(texts, chunkDelimiter))
	b.WriteString("\n```\n\n")
}

func writeRawAttachments(b *strings.Builder, attachments []Attachment, maxChars int) {
	b.WriteString("Contents of the user's attached files:\n")
	for _, a := range attachments {
		fmt.Fprintf(b, "--- %s ---\n", a.Name)
		b.WriteString(truncateRunes(a.Text, maxChars))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
