package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDispatcher posts each due user to the processor endpoint. The endpoint
// replies 202 once the run is accepted and executes it in the background, so
// a dispatch costs one fast round-trip.
type HTTPDispatcher struct {
	url   string // full URL of the processor endpoint
	token string // bearer token, empty in development
	httpc *http.Client
}

// NewHTTPDispatcher creates a dispatcher against the given processor URL.
func NewHTTPDispatcher(url, token string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		url:   url,
		token: token,
		httpc: &http.Client{Timeout: timeout},
	}
}

// Dispatch sends one {userId} job and checks only for acceptance.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, userID string) error {
	payload, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post job: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("processor endpoint returned %d", resp.StatusCode)
	}
	return nil
}
