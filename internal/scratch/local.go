package scratch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps files under <root>/<owner>/<name>.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(owner, name string) (string, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return "", err
	}
	name, err = CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, owner, name), nil
}

func (s *LocalStore) Put(_ context.Context, owner, name string, data []byte) error {
	p, err := s.path(owner, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create user scratch dir: %w", err)
	}
	// Write then rename so readers never see a partial file.
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	return os.Rename(tmp, p)
}

func (s *LocalStore) Get(_ context.Context, owner, name string) ([]byte, error) {
	p, err := s.path(owner, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *LocalStore) Delete(_ context.Context, owner, name string) error {
	p, err := s.path(owner, name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
