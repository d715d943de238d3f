package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/pkg/chunker"
	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/jobs"
	"github.com/ragstack/ragserve/pkg/knowledge"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/parser"
	"github.com/ragstack/ragserve/pkg/providers"
	"github.com/ragstack/ragserve/pkg/store"
)

// Service wires the whole pipeline together: providers, stores, the
// ingestion orchestrator, retrieval, and the knowledge layer. It is the
// single entry point the HTTP API and CLI talk to.
type Service struct {
	cfg       *config.Config
	embedder  domain.Embedder
	generator domain.Generator
	vectors   domain.VectorStore
	docs      domain.DocumentStore
	registry  *store.Registry
	knowledge *knowledge.Store
	cache     *knowledge.AnswerCache
	retriever *Retriever
	ingestor  *Ingestor
	queue     *jobs.Queue

	// non-nil when the vector store persists via explicit snapshots
	saver interface{ Save() error }
}

// NewService builds every component from configuration. The returned
// service owns all resources; call Close on shutdown.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	embedder, err := providers.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := providers.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}

	var (
		vectors domain.VectorStore
		saver   interface{ Save() error }
	)
	switch domain.ProviderType(cfg.VectorDB.Provider) {
	case domain.ProviderHNSW:
		hs, err := store.NewHNSWStore(store.HNSWConfig{
			Dimensions:     embedder.Dimensions(),
			M:              cfg.VectorDB.HNSWM,
			EfConstruction: cfg.VectorDB.HNSWEfConstruct,
			EfSearch:       cfg.VectorDB.HNSWEfSearch,
			StoragePath:    cfg.VectorDB.StoragePath,
		})
		if err != nil {
			return nil, err
		}
		vectors = hs
		saver = hs
	case domain.ProviderQdrant:
		qs, err := store.NewQdrantStore(cfg.VectorDB.QdrantURL, cfg.VectorDB.QdrantCollection, embedder.Dimensions())
		if err != nil {
			return nil, err
		}
		vectors = qs
	default:
		return nil, fmt.Errorf("%w: unknown vector_db provider %q", domain.ErrConfig, cfg.VectorDB.Provider)
	}

	var docs domain.DocumentStore
	switch domain.ProviderType(cfg.DocumentStore.Provider) {
	case domain.ProviderLocal:
		docs, err = store.NewLocalDocStore(cfg.DocumentStore.RootDir)
	case domain.ProviderS3:
		docs, err = store.NewS3DocStore(ctx, cfg.DocumentStore.S3Bucket, cfg.DocumentStore.S3Region, cfg.DocumentStore.S3Prefix)
	default:
		err = fmt.Errorf("%w: unknown document store provider %q", domain.ErrConfig, cfg.DocumentStore.Provider)
	}
	if err != nil {
		return nil, err
	}

	registry, err := store.NewRegistry(cfg.Knowledge.RegistryPath)
	if err != nil {
		return nil, err
	}
	ks, err := knowledge.NewStore(cfg.Knowledge.StorePath)
	if err != nil {
		return nil, err
	}
	cache, err := knowledge.NewAnswerCache(cfg.Knowledge.CacheCapacity, cfg.Knowledge.CacheTTL)
	if err != nil {
		return nil, err
	}

	parseSvc := parser.New(parser.ExternalCommand{
		Enabled: cfg.ExternalParser.Enabled,
		Command: cfg.ExternalParser.Command,
		Args:    cfg.ExternalParser.Args,
		Timeout: cfg.ExternalParser.Timeout,
	})
	chunkSvc := chunker.New(chunker.Config{
		ChunkSize:        cfg.Chunking.ChunkSize,
		ChunkOverlap:     cfg.Chunking.ChunkOverlap,
		MinChunkSize:     cfg.Chunking.MinChunkSize,
		RespectSentences: cfg.Chunking.RespectSentences,
	})

	svc := &Service{
		cfg:       cfg,
		embedder:  embedder,
		generator: generator,
		vectors:   vectors,
		docs:      docs,
		registry:  registry,
		knowledge: ks,
		cache:     cache,
		retriever: NewRetriever(embedder, vectors),
		saver:     saver,
	}
	svc.ingestor = NewIngestor(parseSvc, chunkSvc, embedder, vectors, docs, registry, IngestorConfig{
		EmbedConcurrency: cfg.Jobs.EmbedConcurrency,
		EmbedBatchSize:   cfg.Embeddings.BatchSize,
		MaxRetries:       cfg.LLM.MaxRetries,
	})
	svc.queue = jobs.NewQueue(svc.runner(), jobs.Config{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Retention: cfg.Jobs.Retention,
	})
	return svc, nil
}

// runner adapts the ingestor to the job queue. Files are processed in
// order; a failing file is recorded and the rest still run, so one bad
// upload never poisons the batch.
func (s *Service) runner() jobs.Runner {
	return jobs.RunnerFunc(func(ctx context.Context, files []domain.FileData, reporter *jobs.Reporter) error {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := s.ingestor.IngestFile(ctx, f.Name, f.Data, func(stage domain.FileStatus) {
				reporter.FileStage(i, stage)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var attempts []domain.ParserAttempt
				if res != nil {
					attempts = res.Attempts
				}
				reporter.FileFailed(i, attempts, err)
				continue
			}
			reporter.FileAttempts(i, res.Attempts)
			reporter.FileDone(i, res.Document.ID)
		}
		return nil
	})
}

// Ingest processes files synchronously and returns the per-file outcomes.
func (s *Service) Ingest(ctx context.Context, files []domain.FileData) ([]IngestOutcome, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", domain.ErrInvalidInput)
	}
	outcomes := make([]IngestOutcome, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		res, err := s.ingestor.IngestFile(ctx, f.Name, f.Data, nil)
		out := IngestOutcome{Filename: f.Name}
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Document = &res.Document
			out.Deduped = res.Deduped
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// IngestOutcome is one file's result from a synchronous ingest call.
type IngestOutcome struct {
	Filename string           `json:"filename"`
	Document *domain.Document `json:"document,omitempty"`
	Deduped  bool             `json:"deduped,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// SubmitJob enqueues files for asynchronous ingestion.
func (s *Service) SubmitJob(files []domain.FileData) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files provided", domain.ErrInvalidInput)
	}
	return s.queue.Submit(files)
}

func (s *Service) Job(id string) (domain.JobProgress, error) { return s.queue.Get(id) }
func (s *Service) Jobs() []domain.JobProgress                { return s.queue.List() }
func (s *Service) CancelJob(id string) error                 { return s.queue.Cancel(id) }

// QueryOutcome is the union result of a routed query: exactly one of
// Response or Matches is populated, according to Type.
type QueryOutcome struct {
	Type     QueryType                   `json:"type"`
	Response *domain.QueryResponse       `json:"response,omitempty"`
	Matches  []domain.StringSearchResult `json:"matches,omitempty"`
}

// Handle classifies the input and dispatches to the question pipeline or
// the literal string search.
func (s *Service) Handle(ctx context.Context, req domain.QueryRequest) (*QueryOutcome, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", domain.ErrInvalidInput)
	}
	if Classify(req.Question) == QueryStringSearch {
		matches, err := s.StringSearch(ctx, req.Question)
		if err != nil {
			return nil, err
		}
		return &QueryOutcome{Type: QueryStringSearch, Matches: matches}, nil
	}
	resp, err := s.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	return &QueryOutcome{Type: QueryQuestion, Response: resp}, nil
}

// Query runs the full question pipeline: cache check, retrieval, prompt
// construction with learned examples, generation, citation linking, and
// interaction recording. Filtered queries bypass the answer cache since
// the cached answer was produced against the whole corpus.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	start := time.Now()
	req.Normalize()
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", domain.ErrInvalidInput)
	}

	liveIDs := s.registry.IDs()
	cacheable := len(req.DocumentFilter) == 0
	if cacheable {
		if hit, ok := s.cache.Get(req.Question, liveIDs); ok {
			log.Debug("answer cache hit", "question", req.Question)
			return &domain.QueryResponse{
				Answer:           hit.Answer,
				Citations:        hit.Citations,
				ChunksRetrieved:  len(hit.Citations),
				ProcessingTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	results, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		resp := domain.NotFoundResponse(time.Since(start))
		return &resp, nil
	}

	contextBlock := BuildContext(results)
	candidates := BuildCitations(results, req.Question)
	examples := s.knowledge.FindSimilar(req.Question, s.cfg.Knowledge.LearningExamples)

	prompt := BuildPrompt(req.Question, contextBlock, examples)
	answer, err := s.generator.Generate(ctx, prompt, &domain.GenerationOptions{
		Temperature: s.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, err
	}

	answer, citations := LinkCitations(answer, candidates)

	interactionID, err := s.knowledge.Add(domain.QAInteraction{
		Question:    req.Question,
		Answer:      answer,
		CitedFiles:  citedFiles(citations),
		TopScore:    results[0].Similarity,
		DocumentIDs: liveIDs,
	})
	if err != nil {
		// The answer is still good; losing one learning record is not.
		log.Warn("failed to record interaction", "error", err)
	}

	if cacheable {
		s.cache.Put(req.Question, domain.CachedAnswer{
			Answer:      answer,
			Citations:   citations,
			DocumentIDs: liveIDs,
		})
	}

	resp := &domain.QueryResponse{
		Answer:           answer,
		Citations:        citations,
		ChunksRetrieved:  len(results),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		InteractionID:    interactionID,
	}
	if req.IncludeChunks {
		resp.RawChunks = make([]domain.Chunk, len(results))
		for i, r := range results {
			c := r.Chunk
			c.Vector = nil
			resp.RawChunks[i] = c
		}
	}
	return resp, nil
}

func citedFiles(citations []domain.Citation) []string {
	seen := make(map[string]struct{}, len(citations))
	files := make([]string, 0, len(citations))
	for _, c := range citations {
		if _, ok := seen[c.Filename]; ok {
			continue
		}
		seen[c.Filename] = struct{}{}
		files = append(files, c.Filename)
	}
	return files
}

const (
	searchMatchesPerDoc = 5
	searchMatchesTotal  = 50
	searchSnippetRadius = 80
)

// StringSearch scans the stored plain text of every document for
// case-insensitive literal occurrences. No embedding call is made.
func (s *Service) StringSearch(ctx context.Context, query string) ([]domain.StringSearchResult, error) {
	needle := strings.TrimSpace(query)
	if needle == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", domain.ErrInvalidInput)
	}

	matches := []domain.StringSearchResult{}
	for _, doc := range s.registry.List() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := s.docs.GetText(ctx, doc.ID)
		if err != nil {
			log.Warn("string search: text unavailable", "document_id", doc.ID, "error", err)
			continue
		}

		found, offset := 0, 0
		for found < searchMatchesPerDoc {
			idx, n := foldIndex(text, needle, offset)
			if idx < 0 {
				break
			}
			matches = append(matches, domain.StringSearchResult{
				DocumentID: doc.ID,
				Filename:   doc.Filename,
				Snippet:    searchSnippet(text, idx, n),
				Offset:     idx,
			})
			found++
			offset = idx + n
			if len(matches) >= searchMatchesTotal {
				return matches, nil
			}
		}
	}
	return matches, nil
}

// searchSnippet cuts a byte window around a match, widened to rune
// boundaries, with ellipses marking truncation.
func searchSnippet(text string, idx, matchLen int) string {
	start := idx - searchSnippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	end := idx + matchLen + searchSnippetRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}

	out := strings.ReplaceAll(text[start:end], "\n", " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Documents lists registered documents, newest first.
func (s *Service) Documents() []domain.Document { return s.registry.List() }

// Document returns one registered document by id.
func (s *Service) Document(id string) (domain.Document, error) {
	doc, ok := s.registry.Get(id)
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// DocumentText returns the extracted plain text of a document.
func (s *Service) DocumentText(ctx context.Context, id string) (string, error) {
	if _, ok := s.registry.Get(id); !ok {
		return "", domain.ErrDocumentNotFound
	}
	return s.docs.GetText(ctx, id)
}

// DeleteDocument removes a document everywhere: registry, vector store,
// and document store. Repeating the call reports not found. Cached
// answers self-invalidate through the live document id tuple.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}
	removed, err := s.vectors.DeleteByDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	log.Info("document deleted", "document_id", id, "chunks_removed", removed)
	return nil
}

// Feedback records a +1/-1 rating on a past interaction.
func (s *Service) Feedback(interactionID string, value int) error {
	return s.knowledge.Feedback(interactionID, value)
}

// ServiceStats is the aggregate state snapshot served by the stats API.
type ServiceStats struct {
	Documents    int    `json:"documents"`
	Chunks       int    `json:"chunks"`
	Interactions int    `json:"interactions"`
	CacheEntries int    `json:"cache_entries"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
}

func (s *Service) Stats() ServiceStats {
	hits, misses := s.cache.Stats()
	return ServiceStats{
		Documents:    s.registry.Count(),
		Chunks:       s.vectors.Len(),
		Interactions: s.knowledge.Count(),
		CacheEntries: s.cache.Len(),
		CacheHits:    hits,
		CacheMisses:  misses,
	}
}

// Health checks every upstream dependency and returns per-component
// status keyed by component name. The error is non-nil when any
// component is down.
func (s *Service) Health(ctx context.Context) (map[string]string, error) {
	checks := map[string]func(context.Context) error{
		"embedder":     s.embedder.Health,
		"generator":    s.generator.Health,
		"vector_store": s.vectors.Health,
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(checks))
	var firstErr error
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			status[name] = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			status[name] = "ok"
		}
	}
	return status, firstErr
}

// Close flushes and releases everything in dependency order. Safe to
// call once during shutdown.
func (s *Service) Close() error {
	s.queue.Close()

	var firstErr error
	if s.saver != nil {
		if err := s.saver.Save(); err != nil {
			log.Error("failed to persist vector index", "error", err)
			firstErr = err
		}
	}
	if err := s.knowledge.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.registry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
