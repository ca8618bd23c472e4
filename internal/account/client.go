// Package account looks up user account records from the account service.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Account is the subset of the account record exposed to conversations.
type Account struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	OpenCases int       `json:"open_cases"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary renders the account as grounding context for a composed response.
func (a *Account) Summary() string {
	return fmt.Sprintf("Account %s: plan=%s status=%s open_cases=%d member_since=%s",
		a.UserID, a.Plan, a.Status, a.OpenCases, a.CreatedAt.Format("2006-01-02"))
}

// Lookup resolves an account record for a user.
type Lookup interface {
	Account(ctx context.Context, userID string) (*Account, error)
}

// HTTPLookup queries the account service over HTTP.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLookup creates an account client against the given base URL.
func NewHTTPLookup(baseURL string) *HTTPLookup {
	return &HTTPLookup{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *HTTPLookup) Account(ctx context.Context, userID string) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/accounts/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no account found for user %s", userID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("account service returned status %d: %s", resp.StatusCode, string(body))
	}

	var acct Account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	return &acct, nil
}
