package utils

import (
	"errors"
	"fmt"
	"math"
)

var ErrEmptyVector = errors.New("vectors cannot be empty")

// dot computes the dot product of two vectors of equal length.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Magnitude is the L2 norm of vec.
func Magnitude(vec []float32) float64 {
	return math.Sqrt(dot(vec, vec))
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	magA, magB := Magnitude(a), Magnitude(b)
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return float32(dot(a, b) / (magA * magB)), nil
}
