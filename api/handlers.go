package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
)

// writeError renders the stable error envelope:
// {"error": {"type": "...", "message": "..."}}.
func writeError(c *gin.Context, err error) {
	status := domain.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":    domain.ErrorKind(err),
			"message": err.Error(),
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	status, err := s.svc.Health(c.Request.Context())
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": err == nil, "components": status})
}

// readUploads pulls every file out of the multipart form, buffered in
// memory up to the configured upload limit.
func (s *Server) readUploads(c *gin.Context) ([]domain.FileData, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadSize)

	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files in multipart field %q", domain.ErrInvalidInput, "files")
	}

	files := make([]domain.FileData, 0, len(uploads))
	for _, fh := range uploads {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
		}
		files = append(files, domain.FileData{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func (s *Server) handleIngest(c *gin.Context) {
	files, err := s.readUploads(c)
	if err != nil {
		writeError(c, err)
		return
	}
	outcomes, err := s.svc.Ingest(c.Request.Context(), files)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": outcomes})
}

func (s *Server) handleIngestAsync(c *gin.Context) {
	files, err := s.readUploads(c)
	if err != nil {
		writeError(c, err)
		return
	}
	jobID, err := s.svc.SubmitJob(files)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.svc.Jobs()
	running := 0
	for _, j := range jobs {
		if j.Status == domain.JobRunning {
			running++
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(jobs), "running": running, "jobs": jobs})
}

func (s *Server) handleGetJob(c *gin.Context) {
	progress, err := s.svc.Job(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	if err := s.svc.CancelJob(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrJSON, err))
		return
	}
	outcome, err := s.svc.Handle(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleStringSearch(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrJSON, err))
		return
	}
	matches, err := s.svc.StringSearch(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": s.svc.Documents()})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.svc.Document(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.DeleteDocument(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req struct {
		InteractionID string `json:"interaction_id"`
		Feedback      *int   `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrJSON, err))
		return
	}
	if req.InteractionID == "" || req.Feedback == nil {
		writeError(c, fmt.Errorf("%w: interaction_id and feedback are required", domain.ErrInvalidInput))
		return
	}
	if err := s.svc.Feedback(req.InteractionID, *req.Feedback); err != nil {
		// An unknown interaction id is a client mistake, not a missing
		// document resource.
		if errors.Is(err, domain.ErrDocumentNotFound) {
			err = fmt.Errorf("%w: unknown interaction id %s", domain.ErrInvalidInput, req.InteractionID)
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Stats())
}
