// Package source retrieves the event set for one sessionizing run.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/vincentbai/browsetrace-sessions/internal/logger"
	"github.com/vincentbai/browsetrace-sessions/internal/models"
)

// StatusError reports a non-2xx response from the event source.
type StatusError struct {
	URI        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event source %s returned status %d", e.URI, e.StatusCode)
}

// Decode reads a {"events": [...]} document. Malformed timestamps surface
// as models.ErrMalformedInput.
func Decode(r io.Reader) ([]models.Event, error) {
	var document struct {
		Events *[]models.Event `json:"events"`
	}
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if document.Events == nil {
		return nil, fmt.Errorf("%w: document has no events field", models.ErrMalformedInput)
	}
	return *document.Events, nil
}

// HTTP fetches events with a GET request.
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

func (h *HTTP) Fetch(ctx context.Context) ([]models.Event, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, h.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := h.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer response.Body.Close()

	logger.FromContext(ctx).Debug("Event source responded",
		logger.String("uri", h.uri),
		logger.Int("status", response.StatusCode),
	)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, &StatusError{URI: h.uri, StatusCode: response.StatusCode}
	}
	return Decode(response.Body)
}

// File reads events from a JSON document on disk.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Fetch(_ context.Context) ([]models.Event, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}
