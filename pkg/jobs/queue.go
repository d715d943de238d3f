// Package jobs runs asynchronous ingestion on a bounded queue with a
// fixed worker pool. Job records are kept in memory and garbage-collected
// after a retention window.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
)

// Runner processes one job's files. It reports progress through the
// reporter and must stop promptly once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, files []domain.FileData, reporter *Reporter) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, files []domain.FileData, reporter *Reporter) error

func (f RunnerFunc) Run(ctx context.Context, files []domain.FileData, reporter *Reporter) error {
	return f(ctx, files, reporter)
}

type Config struct {
	Workers   int
	QueueSize int
	Retention time.Duration
}

type job struct {
	id       string
	files    []domain.FileData
	progress domain.JobProgress
	cancel   context.CancelFunc
	doneAt   time.Time
}

// Queue is a bounded FIFO of ingestion jobs served by N workers.
// Submission fails fast when the buffer is full.
type Queue struct {
	runner Runner
	cfg    Config

	mu    sync.RWMutex
	jobs  map[string]*job
	order []string // submission order, for GC and listing

	pending chan string
	root    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(runner Runner, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}

	root, stop := context.WithCancel(context.Background())
	q := &Queue{
		runner:  runner,
		cfg:     cfg,
		jobs:    make(map[string]*job),
		pending: make(chan string, cfg.QueueSize),
		root:    root,
		stop:    stop,
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a job and returns its ID, or ErrQueueFull when the
// buffer has no room.
func (q *Queue) Submit(files []domain.FileData) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files", domain.ErrInvalidInput)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	fileProgress := make([]domain.FileProgress, len(files))
	for i, f := range files {
		fileProgress[i] = domain.FileProgress{Name: f.Name, Status: domain.FilePending}
	}

	j := &job{
		id:     id,
		files:  files,
		cancel: func() {}, // replaced when a worker picks the job up
		progress: domain.JobProgress{
			ID:        id,
			Status:    domain.JobPending,
			CreatedAt: now,
			UpdatedAt: now,
			Files:     fileProgress,
		},
	}

	q.mu.Lock()
	q.gcLocked(now)
	q.jobs[id] = j
	q.order = append(q.order, id)
	q.mu.Unlock()

	select {
	case q.pending <- id:
		return id, nil
	default:
		q.mu.Lock()
		delete(q.jobs, id)
		for i := len(q.order) - 1; i >= 0; i-- {
			if q.order[i] == id {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
		q.mu.Unlock()
		return "", domain.ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.root.Done():
			return
		case id := <-q.pending:
			q.runJob(id)
		}
	}
}

func (q *Queue) runJob(id string) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if j.progress.Status.Terminal() {
		// Cancelled while still queued.
		q.mu.Unlock()
		return
	}
	j.progress.Status = domain.JobRunning
	j.progress.UpdatedAt = time.Now().UTC()
	files := j.files
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(q.root)
	q.mu.Lock()
	j.cancel = cancel
	q.mu.Unlock()
	defer cancel()

	reporter := &Reporter{queue: q, jobID: id}
	err := q.runner.Run(ctx, files, reporter)

	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now().UTC()
	j.progress.UpdatedAt = now
	j.doneAt = now
	j.files = nil // release upload buffers

	switch {
	case j.progress.Status == domain.JobCancelled:
		// Runner observed cancellation; keep the cancelled status.
	case ctx.Err() != nil:
		j.progress.Status = domain.JobCancelled
	case err != nil:
		j.progress.Status = domain.JobFailed
		j.progress.Error = err.Error()
		log.Warn("ingestion job failed", "job_id", id, "error", err)
	default:
		j.progress.Status = domain.JobCompleted
	}
	j.progress.Percent = overallPercent(j.progress.Files)
}

// Get returns a snapshot of a job's progress. Expired records behave as
// never-existing.
func (q *Queue) Get(id string) (domain.JobProgress, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked(time.Now().UTC())

	j, ok := q.jobs[id]
	if !ok {
		return domain.JobProgress{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return snapshot(j), nil
}

// List returns snapshots of all retained jobs, newest first.
func (q *Queue) List() []domain.JobProgress {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked(time.Now().UTC())

	out := make([]domain.JobProgress, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		if j, ok := q.jobs[q.order[i]]; ok {
			out = append(out, snapshot(j))
		}
	}
	return out
}

// Cancel requests a job stop. Terminal jobs are left untouched; queued
// jobs flip to cancelled immediately.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if j.progress.Status.Terminal() {
		return nil
	}

	if j.progress.Status == domain.JobPending {
		j.progress.Status = domain.JobCancelled
		j.progress.UpdatedAt = time.Now().UTC()
		j.doneAt = j.progress.UpdatedAt
		j.files = nil
		return nil
	}

	j.progress.Status = domain.JobCancelled
	j.progress.UpdatedAt = time.Now().UTC()
	j.cancel()
	return nil
}

// Close stops the workers and waits for in-flight jobs to finish their
// cancellation.
func (q *Queue) Close() {
	q.stop()
	q.wg.Wait()
}

// gcLocked drops terminal jobs older than the retention window.
func (q *Queue) gcLocked(now time.Time) {
	kept := q.order[:0]
	for _, id := range q.order {
		j, ok := q.jobs[id]
		if !ok {
			continue
		}
		if j.progress.Status.Terminal() && !j.doneAt.IsZero() && now.Sub(j.doneAt) > q.cfg.Retention {
			delete(q.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}

func snapshot(j *job) domain.JobProgress {
	p := j.progress
	p.Files = make([]domain.FileProgress, len(j.progress.Files))
	copy(p.Files, j.progress.Files)
	p.Percent = overallPercent(p.Files)
	return p
}

// overallPercent is the share of files that have reached a terminal
// state, failed files included, scaled to 0-100.
func overallPercent(files []domain.FileProgress) int {
	if len(files) == 0 {
		return 0
	}
	done := 0
	for _, f := range files {
		if f.Status == domain.FileDone || f.Status == domain.FileFailed {
			done++
		}
	}
	return done * 100 / len(files)
}

// Reporter lets a Runner publish per-file progress back into the queue.
type Reporter struct {
	queue *Queue
	jobID string
}

// FileStage marks a file's current pipeline stage.
func (r *Reporter) FileStage(fileIndex int, status domain.FileStatus) {
	r.update(fileIndex, func(f *domain.FileProgress) {
		f.Status = status
		f.Percent = domain.StagePercent(status)
	})
}

// FileDone marks a file fully ingested under the given document ID.
func (r *Reporter) FileDone(fileIndex int, documentID string) {
	r.update(fileIndex, func(f *domain.FileProgress) {
		f.Status = domain.FileDone
		f.Percent = domain.StagePercent(domain.FileDone)
		f.DocumentID = documentID
	})
}

// FileFailed marks a file failed with its error and parser attempts.
func (r *Reporter) FileFailed(fileIndex int, attempts []domain.ParserAttempt, err error) {
	r.update(fileIndex, func(f *domain.FileProgress) {
		f.Status = domain.FileFailed
		f.Attempts = attempts
		if err != nil {
			f.Error = err.Error()
		}
	})
}

// FileAttempts records parser attempts for a file that still succeeded.
func (r *Reporter) FileAttempts(fileIndex int, attempts []domain.ParserAttempt) {
	r.update(fileIndex, func(f *domain.FileProgress) {
		f.Attempts = attempts
	})
}

func (r *Reporter) update(fileIndex int, fn func(*domain.FileProgress)) {
	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()

	j, ok := r.queue.jobs[r.jobID]
	if !ok || fileIndex < 0 || fileIndex >= len(j.progress.Files) {
		return
	}
	fn(&j.progress.Files[fileIndex])
	j.progress.UpdatedAt = time.Now().UTC()
}
