// Package vectorindex is a brute-force in-memory cosine index. An Index is
// meant to be built, queried and dropped within a single request.
package vectorindex

import (
	"errors"
	"fmt"
	"sort"

	"github.com/llmwui/llm-wui/internal/utils"
)

var (
	ErrLengthMismatch    = errors.New("texts and vectors length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

type Result struct {
	Position int // position of the text in insertion order
	Text     string
	Score    float32
}

type Index struct {
	dimension int
	texts     []string
	vectors   [][]float32
}

func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &Index{dimension: dimension}, nil
}

func (ix *Index) Len() int { return len(ix.texts) }

// Add appends texts with their vectors. Nothing is added if any vector has the wrong dimension.
func (ix *Index) Add(texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != ix.dimension {
			return ErrDimensionMismatch
		}
	}
	ix.texts = append(ix.texts, texts...)
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Search returns the k entries most similar to query, highest score first.
// Equal scores keep insertion order. k larger than Len returns everything.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ix.dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]Result, len(ix.vectors))
	for i, v := range ix.vectors {
		score, err := utils.CosineSimilarity(v, query)
		if err != nil {
			return nil, fmt.Errorf("score entry %d: %w", i, err)
		}
		results[i] = Result{Position: i, Text: ix.texts[i], Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}
