package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors for each failure kind the service can surface. Wrap with
// fmt.Errorf("%w: ...") so call sites keep context while handlers can map
// the kind to a stable HTTP status.
var (
	ErrConfig              = errors.New("configuration error")
	ErrFileParse           = errors.New("file parse failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmbedding           = errors.New("embedding generation failed")
	ErrVectorDB            = errors.New("vector store operation failed")
	ErrLLM                 = errors.New("llm provider unavailable")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrIO                  = errors.New("io failure")
	ErrJSON                = errors.New("malformed request body")
	ErrUpstreamHTTP        = errors.New("upstream http error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInternal            = errors.New("internal error")

	// Job queue backpressure: submitting to a full queue fails fast.
	ErrQueueFull   = errors.New("job queue full")
	ErrJobNotFound = errors.New("job not found")
)

// ErrorKind returns the machine-readable type string used in the error
// envelope, e.g. {"error": {"type": "file_parse", "message": ...}}.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrFileParse):
		return "file_parse"
	case errors.Is(err, ErrUnsupportedFileType):
		return "unsupported_file_type"
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrVectorDB):
		return "vector_db"
	case errors.Is(err, ErrLLM):
		return "llm"
	case errors.Is(err, ErrDocumentNotFound):
		return "document_not_found"
	case errors.Is(err, ErrJSON):
		return "json"
	case errors.Is(err, ErrUpstreamHTTP):
		return "http"
	case errors.Is(err, ErrInvalidInput):
		return "json"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrJobNotFound):
		return "job_not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to its stable HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrConfig),
		errors.Is(err, ErrFileParse),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrJSON),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLLM):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamHTTP):
		return http.StatusBadGateway
	case errors.Is(err, ErrQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
