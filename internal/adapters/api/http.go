package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	domain "repsync/internal/domain/draft"
)

// Client talks to the remote coaching REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL and bearer token.
// PRE: baseURL is a valid absolute URL without a trailing slash
// POST: Returns a ready-to-use client with a request timeout
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// TransmitSet sends the complete recorded state of one set.
// POST: nil on any 2xx response; every other outcome is an error
func (c *Client) TransmitSet(ctx context.Context, exerciseID string, setNumber int, payload SetPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal set payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/exercises/%s/sets/%d",
		c.baseURL, url.PathEscape(exerciseID), setNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build set request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transmit set: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("set_transmit_rejected",
			"exercise_id", exerciseID, "set_number", setNumber, "status", resp.StatusCode)
		return fmt.Errorf("transmit set: server returned %d", resp.StatusCode)
	}
	return nil
}

// FetchDayPlan retrieves the exercises scheduled for a training day.
// POST: Returns the authoritative plan, including server-known set results
func (c *Client) FetchDayPlan(ctx context.Context, dayID string) ([]domain.Exercise, error) {
	endpoint := fmt.Sprintf("%s/api/days/%s/exercises", c.baseURL, url.PathEscape(dayID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build plan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch day plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch day plan: server returned %d", resp.StatusCode)
	}

	var plan struct {
		Exercises []domain.Exercise `json:"exercises"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode day plan: %w", err)
	}
	return plan.Exercises, nil
}
