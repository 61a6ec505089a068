// Package notify is the client for the push-notification collaborator.
// Delivery is best-effort: callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Result is the per-token delivery tally for one send.
type Result struct {
	Delivered int
	Failed    int
}

// Notifier attempts delivery to a set of device tokens.
type Notifier interface {
	Send(ctx context.Context, tokens []string, title, body string) (Result, error)
}

// PushClient talks to an Expo-style push gateway: one POST with a message per
// token, a per-message ticket in response.
type PushClient struct {
	endpoint string
	httpc    *http.Client
	log      *zap.Logger
}

// NewPushClient creates a push client for the given gateway endpoint.
func NewPushClient(endpoint string, timeout time.Duration, log *zap.Logger) *PushClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushClient{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
		log:      log,
	}
}

type pushMessage struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type pushTicket struct {
	Status  string `json:"status"` // "ok" | "error"
	Message string `json:"message,omitempty"`
}

type pushResponse struct {
	Data []pushTicket `json:"data"`
}

// Send posts one message per token and tallies the returned tickets.
func (c *PushClient) Send(ctx context.Context, tokens []string, title, body string) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, nil
	}

	msgs := make([]pushMessage, 0, len(tokens))
	for _, tok := range tokens {
		msgs = append(msgs, pushMessage{To: tok, Title: title, Body: body, Sound: "default"})
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return Result{}, fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{Failed: len(tokens)}, fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Failed: len(tokens)}, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{Failed: len(tokens)}, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed pushResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{Failed: len(tokens)}, fmt.Errorf("unmarshal push response: %w", err)
	}

	var res Result
	for i, ticket := range parsed.Data {
		if ticket.Status == "ok" {
			res.Delivered++
			continue
		}
		res.Failed++
		c.log.Warn("push ticket failed",
			zap.Int("index", i),
			zap.String("detail", ticket.Message),
		)
	}
	// Tokens the gateway did not answer for count as failed.
	if missing := len(tokens) - len(parsed.Data); missing > 0 {
		res.Failed += missing
	}
	return res, nil
}
