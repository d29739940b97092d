// Package sink delivers a run's sessions to their destination.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vincentbai/browsetrace-sessions/internal/canonical"
	"github.com/vincentbai/browsetrace-sessions/internal/logger"
	"github.com/vincentbai/browsetrace-sessions/internal/models"
)

// Receipt describes a completed submission.
type Receipt struct {
	// Digest is the sha256 of the canonical payload; equal results share it.
	Digest     string
	Bytes      int
	StatusCode int
}

// StatusError reports a non-2xx response from the result sink.
type StatusError struct {
	URI        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("result sink %s returned status %d: %s", e.URI, e.StatusCode, e.Body)
}

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 512

// Encode returns the JSON payload for result and its digest. The digest
// covers the canonical form when every number survives JCS unchanged, and
// the payload bytes themselves otherwise; encoding/json sorts map keys, so
// both are deterministic.
func Encode(result models.Result) ([]byte, string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, "", fmt.Errorf("encode result: %w", err)
	}
	digestInput, err := canonical.Transform(payload)
	if errors.Is(err, canonical.ErrInexactNumber) {
		digestInput = payload
	} else if err != nil {
		return nil, "", fmt.Errorf("digest result: %w", err)
	}
	return payload, canonical.Digest(digestInput), nil
}

// HTTP posts the result document as JSON.
type HTTP struct {
	uri    string
	client *http.Client
}

func NewHTTP(uri string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{uri: uri, client: client}
}

func (h *HTTP) Submit(ctx context.Context, result models.Result) (Receipt, error) {
	payload, digest, err := Encode(result)
	if err != nil {
		return Receipt{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uri, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := h.client.Do(request)
	if err != nil {
		return Receipt{}, fmt.Errorf("submit sessions: %w", err)
	}
	defer response.Body.Close()

	receipt := Receipt{Digest: digest, Bytes: len(payload), StatusCode: response.StatusCode}
	logger.FromContext(ctx).Debug("Result sink responded",
		logger.String("uri", h.uri),
		logger.Int("status", response.StatusCode),
	)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return receipt, &StatusError{URI: h.uri, StatusCode: response.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return receipt, nil
}

// Writer writes the result document to w, one document per line.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Submit(_ context.Context, result models.Result) (Receipt, error) {
	payload, digest, err := Encode(result)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := s.w.Write(append(payload, '\n')); err != nil {
		return Receipt{}, fmt.Errorf("write sessions: %w", err)
	}
	return Receipt{Digest: digest, Bytes: len(payload)}, nil
}

// File writes the result document to path. The document goes to a temp
// file in the same directory first, so path only appears once complete.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Submit(_ context.Context, result models.Result) (Receipt, error) {
	payload, digest, err := Encode(result)
	if err != nil {
		return Receipt{}, err
	}

	temp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return Receipt{}, fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(temp.Name())

	if err := temp.Chmod(0o644); err != nil {
		temp.Close()
		return Receipt{}, fmt.Errorf("chmod output file: %w", err)
	}

	if _, err := temp.Write(append(payload, '\n')); err != nil {
		temp.Close()
		return Receipt{}, fmt.Errorf("write sessions: %w", err)
	}
	if err := temp.Close(); err != nil {
		return Receipt{}, fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(temp.Name(), f.path); err != nil {
		return Receipt{}, fmt.Errorf("rename output file: %w", err)
	}
	return Receipt{Digest: digest, Bytes: len(payload)}, nil
}
