package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// runExternal hands a file to the configured external parser (typically an
// OCR tool) and reads extracted text from its stdout. The file is written
// to a temp path because most OCR tools want a path, not a pipe.
func (s *Service) runExternal(filename string, data []byte) (string, error) {
	if !s.external.Enabled {
		return "", fmt.Errorf("external parser not configured")
	}

	tmpDir, err := os.MkdirTemp("", "ragserve-parse-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(filename))
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	timeout := s.external.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := append(append([]string{}, s.external.Args...), tmpPath)
	cmd := exec.CommandContext(ctx, s.external.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("external parser failed: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.String(), nil
}
