// Package escalation hands conversations off to the external ticketing
// system without ever dropping a request.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// TicketRequest is the payload for one external ticket.
type TicketRequest struct {
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Requester string   `json:"requester"`
	Tags      []string `json:"tags,omitempty"`
}

// TicketingClient creates tickets in the external system. The provider is
// not idempotent; callers dedupe with their own key before invoking it.
type TicketingClient interface {
	CreateTicket(ctx context.Context, req TicketRequest) (string, error)
}

// HTTPTicketing is the HTTP ticketing provider client. A circuit breaker
// sheds calls while the provider is down so delivery attempts fail fast
// into the durable queue instead of stacking up on timeouts.
type HTTPTicketing struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPTicketing creates a ticketing client for the given endpoint.
func NewHTTPTicketing(baseURL, token string, timeout time.Duration) *HTTPTicketing {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPTicketing{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ticketing",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// CreateTicket implements TicketingClient.
func (c *HTTPTicketing) CreateTicket(ctx context.Context, req TicketRequest) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.create(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *HTTPTicketing) create(ctx context.Context, req TicketRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ticket: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tickets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ticketing provider returned %s: %s", resp.Status, payload)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("unparsable ticketing response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("ticketing provider returned no ticket id")
	}

	return out.ID, nil
}
