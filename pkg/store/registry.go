package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ragstack/ragserve/pkg/domain"
)

// Registry is the catalog of ingested documents, persisted in SQLite and
// mirrored in memory for lock-free-ish reads. The content_hash unique
// constraint is what backs ingestion dedupe.
type Registry struct {
	db *sql.DB

	mu     sync.RWMutex
	byID   map[string]domain.Document
	byHash map[string]string // content hash -> document ID
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL UNIQUE,
	size          INTEGER NOT NULL,
	total_pages   INTEGER NOT NULL DEFAULT 0,
	total_chunks  INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`

func NewRegistry(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: registry path not configured", domain.ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create registry dir: %v", domain.ErrIO, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open registry db: %v", domain.ErrIO, err)
	}
	if _, err := db.Exec(registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create registry schema: %v", domain.ErrIO, err)
	}

	r := &Registry{
		db:     db,
		byID:   make(map[string]domain.Document),
		byHash: make(map[string]string),
	}
	if err := r.loadAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadAll() error {
	rows, err := r.db.Query(`SELECT id, filename, file_type, language, content_hash,
		size, total_pages, total_chunks, created_at, metadata FROM documents`)
	if err != nil {
		return fmt.Errorf("%w: load registry: %v", domain.ErrIO, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var doc domain.Document
		var createdAt, metadata string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.Language,
			&doc.ContentHash, &doc.Size, &doc.TotalPages, &doc.TotalChunks,
			&createdAt, &metadata); err != nil {
			return fmt.Errorf("%w: scan registry row: %v", domain.ErrIO, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			doc.CreatedAt = t
		}
		if metadata != "" && metadata != "{}" {
			_ = json.Unmarshal([]byte(metadata), &doc.Metadata)
		}
		r.byID[doc.ID] = doc
		r.byHash[doc.ContentHash] = doc.ID
	}
	return rows.Err()
}

// Register inserts a document record. The unique content_hash constraint
// makes concurrent duplicate ingests race-safe: the loser gets an error.
func (r *Registry) Register(ctx context.Context, doc domain.Document) error {
	metadata := "{}"
	if doc.Metadata != nil {
		if b, err := json.Marshal(doc.Metadata); err == nil {
			metadata = string(b)
		}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO documents
		(id, filename, file_type, language, content_hash, size, total_pages, total_chunks, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, string(doc.FileType), doc.Language, doc.ContentHash,
		doc.Size, doc.TotalPages, doc.TotalChunks, doc.CreatedAt.Format(time.RFC3339Nano), metadata)
	if err != nil {
		return fmt.Errorf("%w: register document: %v", domain.ErrIO, err)
	}

	r.mu.Lock()
	r.byID[doc.ID] = doc
	r.byHash[doc.ContentHash] = doc.ID
	r.mu.Unlock()
	return nil
}

// UpdateChunkCount records the final chunk count once indexing finishes.
func (r *Registry) UpdateChunkCount(ctx context.Context, documentID string, totalChunks int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET total_chunks = ? WHERE id = ?`, totalChunks, documentID)
	if err != nil {
		return fmt.Errorf("%w: update chunk count: %v", domain.ErrIO, err)
	}

	r.mu.Lock()
	if doc, ok := r.byID[documentID]; ok {
		doc.TotalChunks = totalChunks
		r.byID[documentID] = doc
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(documentID string) (domain.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[documentID]
	return doc, ok
}

// FindByHash returns the document with the given content hash, if any.
func (r *Registry) FindByHash(contentHash string) (domain.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[contentHash]
	if !ok {
		return domain.Document{}, false
	}
	doc, ok := r.byID[id]
	return doc, ok
}

func (r *Registry) Remove(ctx context.Context, documentID string) error {
	r.mu.Lock()
	doc, ok := r.byID[documentID]
	if ok {
		delete(r.byID, documentID)
		delete(r.byHash, doc.ContentHash)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("%w: remove document: %v", domain.ErrIO, err)
	}
	return nil
}

// List returns all documents ordered by creation time, newest first.
func (r *Registry) List() []domain.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]domain.Document, 0, len(r.byID))
	for _, doc := range r.byID {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// IDs returns all live document IDs in ascending order. The sorted tuple
// is what the answer cache compares against for invalidation.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) Close() error {
	return r.db.Close()
}
