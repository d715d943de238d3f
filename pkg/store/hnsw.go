// Package store provides the vector index, the original-document store, and
// the document registry backing the retrieval pipeline.
package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
)

// rebuildOrphanRatio is the fraction of lazy-deleted nodes that triggers a
// full graph rebuild on the next delete.
const rebuildOrphanRatio = 0.5

type HNSWConfig struct {
	Dimensions     int
	M              int
	EfConstruction int
	EfSearch       int
	StoragePath    string
}

// HNSWStore is an in-process vector store over a pure-Go HNSW graph.
// Deletes are lazy: the node stays in the graph but loses its ID mapping,
// and the graph is rebuilt once orphans outnumber live vectors.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap   map[string]uint64       // chunk ID -> graph key
	chunks  map[uint64]domain.Chunk // graph key -> payload
	byDoc   map[string][]string     // document ID -> chunk IDs
	nextKey uint64
}

// hnswMetadata is the gob-persisted companion of the exported graph.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Chunks  map[uint64]domain.Chunk
	NextKey uint64
	Config  HNSWConfig
}

var _ domain.VectorStore = (*HNSWStore)(nil)

func NewHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: hnsw dimensions must be positive", domain.ErrConfig)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}

	s := &HNSWStore{
		config: cfg,
		idMap:  make(map[string]uint64),
		chunks: make(map[uint64]domain.Chunk),
		byDoc:  make(map[string][]string),
	}
	s.graph = s.newGraph()

	if cfg.StoragePath != "" {
		if _, err := os.Stat(cfg.StoragePath); err == nil {
			if err := s.load(cfg.StoragePath); err != nil {
				return nil, fmt.Errorf("%w: load index: %v", domain.ErrVectorDB, err)
			}
			log.Info("vector index loaded", "path", cfg.StoragePath, "vectors", len(s.idMap))
		}
	}

	return s, nil
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.config.M
	g.EfSearch = s.config.EfSearch
	return g
}

func (s *HNSWStore) Insert(ctx context.Context, chunk domain.Chunk) error {
	return s.InsertBatch(ctx, []domain.Chunk{chunk})
}

// InsertBatch adds chunks to the index. Re-inserting an existing chunk ID
// replaces it via lazy deletion of the old node.
func (s *HNSWStore) InsertBatch(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Vector) != s.config.Dimensions {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				domain.ErrVectorDB, chunk.ID, len(chunk.Vector), s.config.Dimensions)
		}
	}

	// The graph links new nodes through its EfSearch candidate width, so
	// inserts run at the construction breadth.
	s.graph.EfSearch = s.config.EfConstruction
	defer func() { s.graph.EfSearch = s.config.EfSearch }()

	for _, chunk := range chunks {
		if oldKey, exists := s.idMap[chunk.ID]; exists {
			delete(s.chunks, oldKey)
			delete(s.idMap, chunk.ID)
		} else {
			s.byDoc[chunk.DocumentID] = append(s.byDoc[chunk.DocumentID], chunk.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(chunk.Vector))
		copy(vec, chunk.Vector)
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[chunk.ID] = key
		s.chunks[key] = chunk
	}
	return nil
}

// Search returns up to topK live chunks ranked by cosine similarity. A
// non-empty filter restricts candidates to the listed document IDs. The
// graph is overfetched with doubling k so tombstones and filtered-out
// chunks cannot starve the result set. ef_search is clamped to at least
// the effective k; the clamp writes to the graph, so reads take the full
// lock.
func (s *HNSWStore) Search(_ context.Context, vector []float32, topK int, filter []string) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vector) != s.config.Dimensions {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			domain.ErrVectorDB, len(vector), s.config.Dimensions)
	}
	if len(s.idMap) == 0 {
		return []domain.SearchResult{}, nil
	}

	if topK > s.config.EfSearch {
		log.Warn("top_k exceeds ef_search, raising ef for this query", "top_k", topK, "ef_search", s.config.EfSearch)
	}
	defer func() { s.graph.EfSearch = s.config.EfSearch }()

	var docFilter map[string]struct{}
	if len(filter) > 0 {
		docFilter = make(map[string]struct{}, len(filter))
		for _, id := range filter {
			docFilter[id] = struct{}{}
		}
	}

	graphSize := s.graph.Len()
	results := make([]domain.SearchResult, 0, topK)
	for k := topK; ; k *= 2 {
		if k > graphSize {
			k = graphSize
		}
		s.graph.EfSearch = max(s.config.EfSearch, k)

		nodes := s.graph.Search(vector, k)
		results = results[:0]
		for _, node := range nodes {
			chunk, live := s.chunks[node.Key]
			if !live {
				continue
			}
			if docFilter != nil {
				if _, ok := docFilter[chunk.DocumentID]; !ok {
					continue
				}
			}
			results = append(results, domain.SearchResult{
				Chunk:      chunk,
				Similarity: 1 - float64(s.graph.Distance(vector, node.Value)),
			})
		}

		if len(results) >= topK || k >= graphSize {
			break
		}
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// sortResults orders by descending similarity, breaking ties on lower chunk
// ID, then lower document ID, so equal-score results are deterministic.
func sortResults(results []domain.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Chunk.ID != results[j].Chunk.ID {
			return results[i].Chunk.ID < results[j].Chunk.ID
		}
		return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
	})
}

// DeleteByDocument tombstones every chunk of a document and reports how
// many were removed. A rebuild runs when orphans pass the ratio threshold.
func (s *HNSWStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunkIDs := s.byDoc[documentID]
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	removed := 0
	for _, id := range chunkIDs {
		if key, exists := s.idMap[id]; exists {
			delete(s.chunks, key)
			delete(s.idMap, id)
			removed++
		}
	}
	delete(s.byDoc, documentID)

	live := len(s.idMap)
	orphans := s.graph.Len() - live
	if live > 0 && float64(orphans) > rebuildOrphanRatio*float64(live) {
		s.rebuildLocked()
	} else if live == 0 && orphans > 0 {
		s.graph = s.newGraph()
	}

	return removed, nil
}

// rebuildLocked reconstructs the graph from live chunks, discarding
// tombstoned nodes. Caller holds the write lock.
func (s *HNSWStore) rebuildLocked() {
	log.Info("rebuilding vector index", "live", len(s.idMap), "graph_nodes", s.graph.Len())

	graph := s.newGraph()
	graph.EfSearch = s.config.EfConstruction
	for key, chunk := range s.chunks {
		graph.Add(hnsw.MakeNode(key, chunk.Vector))
	}
	graph.EfSearch = s.config.EfSearch
	s.graph = graph
}

func (s *HNSWStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Health always succeeds: the index is in-process.
func (s *HNSWStore) Health(_ context.Context) error { return nil }

// DocumentIDs returns the IDs of all documents with live chunks.
func (s *HNSWStore) DocumentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byDoc))
	for id := range s.byDoc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save atomically persists the graph and its metadata next to StoragePath.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.config.StoragePath
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %v", domain.ErrIO, err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create index file: %v", domain.ErrIO, err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: export graph: %v", domain.ErrVectorDB, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: close index file: %v", domain.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename index file: %v", domain.ErrIO, err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create metadata file: %v", domain.ErrIO, err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		Chunks:  s.chunks,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: encode metadata: %v", domain.ErrVectorDB, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: close metadata file: %v", domain.ErrIO, err)
	}
	return os.Rename(tmp, path)
}

func (s *HNSWStore) load(path string) error {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return fmt.Errorf("index has dimension %d, config wants %d",
			meta.Config.Dimensions, s.config.Dimensions)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	// Import restores the parameters the file was saved with; the current
	// config wins.
	s.graph.EfSearch = s.config.EfSearch

	s.idMap = meta.IDMap
	s.chunks = meta.Chunks
	s.nextKey = meta.NextKey
	s.byDoc = make(map[string][]string)
	for _, chunk := range meta.Chunks {
		s.byDoc[chunk.DocumentID] = append(s.byDoc[chunk.DocumentID], chunk.ID)
	}
	return nil
}
