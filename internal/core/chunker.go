package core

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping windows of at most size runes.
// Window i starts at rune i*(size-overlap); the last window ends at the end
// of the text. Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunking
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	if len(runes) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
