// Package reporting is the HTTP client for the external report
// submission endpoint.
package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aitzolm/basomap/internal/core/ports"
)

// Submitter implements ports.ReportEndpoint over plain HTTP POST.
type Submitter struct {
	url    string
	client *http.Client
}

// NewSubmitter creates a Submitter for the given endpoint URL.
func NewSubmitter(url string) *Submitter {
	return &Submitter{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send POSTs the payload with the bearer token. Status codes are
// classified per the submission contract: 404/405/501 and transport
// errors mean the endpoint is not there (ErrEndpointUnavailable);
// other non-2xx statuses are real failures the caller may retry or
// queue.
func (s *Submitter) Send(ctx context.Context, payload []byte, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusMethodNotAllowed,
		resp.StatusCode == http.StatusNotImplemented:
		return fmt.Errorf("%w: HTTP %d", ports.ErrEndpointUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("submission failed: HTTP %d", resp.StatusCode)
	}
}
