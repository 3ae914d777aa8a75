package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRemoteService replays mutations for one entity collection against
// the invoicing REST API. Payloads are opaque documents carrying their own
// entity identifiers; serialization is pass-through.
type HTTPRemoteService struct {
	url    string
	client *http.Client
}

// NewHTTPRemoteService creates a client for one entity collection URL,
// e.g. https://api.example.com/api/v1/invoices.
func NewHTTPRemoteService(url string, client *http.Client) *HTTPRemoteService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRemoteService{url: url, client: client}
}

// Create replays a create mutation.
func (s *HTTPRemoteService) Create(ctx context.Context, payload json.RawMessage) error {
	return s.send(ctx, http.MethodPost, payload)
}

// Update replays an update mutation.
func (s *HTTPRemoteService) Update(ctx context.Context, payload json.RawMessage) error {
	return s.send(ctx, http.MethodPut, payload)
}

// Delete replays a delete mutation.
func (s *HTTPRemoteService) Delete(ctx context.Context, payload json.RawMessage) error {
	return s.send(ctx, http.MethodDelete, payload)
}

func (s *HTTPRemoteService) send(ctx context.Context, method string, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, method, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: remote returned %d", method, s.url, resp.StatusCode)
	}
	return nil
}
