package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragstack/ragserve/pkg/domain"
)

const (
	rawFileName  = "raw"
	textFileName = "text.txt"
)

// LocalDocStore keeps the original upload and its extracted text on disk,
// one directory per document ID.
type LocalDocStore struct {
	root string
}

var _ domain.DocumentStore = (*LocalDocStore)(nil)

func NewLocalDocStore(root string) (*LocalDocStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: document store root dir not configured", domain.ErrConfig)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create document store root: %v", domain.ErrIO, err)
	}
	return &LocalDocStore{root: root}, nil
}

func (s *LocalDocStore) docDir(documentID string) string {
	return filepath.Join(s.root, documentID)
}

func (s *LocalDocStore) Store(_ context.Context, documentID string, raw []byte, text string) (string, error) {
	dir := s.docDir(documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create document dir: %v", domain.ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(dir, rawFileName), raw, 0o644); err != nil {
		return "", fmt.Errorf("%w: write raw file: %v", domain.ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(dir, textFileName), []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("%w: write text file: %v", domain.ErrIO, err)
	}
	return s.URI(documentID), nil
}

func (s *LocalDocStore) GetRaw(_ context.Context, documentID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.docDir(documentID), rawFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("%w: read raw file: %v", domain.ErrIO, err)
	}
	return data, nil
}

func (s *LocalDocStore) GetText(_ context.Context, documentID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.docDir(documentID), textFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
		}
		return "", fmt.Errorf("%w: read text file: %v", domain.ErrIO, err)
	}
	return string(data), nil
}

func (s *LocalDocStore) Exists(_ context.Context, documentID string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.docDir(documentID), rawFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat document: %v", domain.ErrIO, err)
	}
	return true, nil
}

func (s *LocalDocStore) Delete(_ context.Context, documentID string) error {
	if err := os.RemoveAll(s.docDir(documentID)); err != nil {
		return fmt.Errorf("%w: delete document dir: %v", domain.ErrIO, err)
	}
	return nil
}

func (s *LocalDocStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list document store: %v", domain.ErrIO, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func (s *LocalDocStore) URI(documentID string) string {
	abs, err := filepath.Abs(s.docDir(documentID))
	if err != nil {
		abs = s.docDir(documentID)
	}
	return "file://" + abs
}
