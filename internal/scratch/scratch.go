// Package scratch stores users' uploaded files until they are deleted.
package scratch

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// MaxFileSize bounds a single upload.
const MaxFileSize = 32 << 20

type Store interface {
	Put(ctx context.Context, owner, name string, data []byte) error
	Get(ctx context.Context, owner, name string) ([]byte, error)
	Delete(ctx context.Context, owner, name string) error
}

// CleanName reduces a client supplied file name to a single path element.
func CleanName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	return name, nil
}

func cleanOwner(owner string) (string, error) {
	if owner == "" || strings.ContainsAny(owner, "/\\") || owner == "." || owner == ".." {
		return "", ErrInvalidName
	}
	return owner, nil
}
