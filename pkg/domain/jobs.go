package domain

import "time"

// JobStatus is the overall state of an ingestion job. Transitions are
// monotonic: Pending -> Running -> (Completed | Failed | Cancelled).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// FileStatus is the per-file sub-state within a job.
type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileParsing   FileStatus = "parsing"
	FileChunking  FileStatus = "chunking"
	FileEmbedding FileStatus = "embedding"
	FileIndexing  FileStatus = "indexing"
	FileDone      FileStatus = "done"
	FileFailed    FileStatus = "failed"
)

// StagePercent maps a file stage to its progress percentage.
func StagePercent(s FileStatus) int {
	switch s {
	case FileParsing:
		return 20
	case FileChunking:
		return 40
	case FileEmbedding:
		return 80
	case FileIndexing, FileDone:
		return 100
	default:
		return 0
	}
}

// FileData is one uploaded file buffered in memory for ingestion.
type FileData struct {
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// ParserAttempt records one parser invocation during tiered parsing.
type ParserAttempt struct {
	Name    string    `json:"name"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended"`
	Error   string    `json:"error,omitempty"`
}

// FileProgress is the observable per-file progress record.
type FileProgress struct {
	Name       string          `json:"name"`
	Status     FileStatus      `json:"status"`
	Percent    int             `json:"percent"`
	Attempts   []ParserAttempt `json:"parser_attempts,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// JobProgress is the observable state of a whole job.
type JobProgress struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Files     []FileProgress `json:"files"`
	Percent   int            `json:"percent"`
	Error     string         `json:"error,omitempty"`
}
