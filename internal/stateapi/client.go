// Package stateapi is the client of the backbone's room-state REST surface.
// Failures surface to the caller as errors; no retries happen here.
package stateapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (c *Client) FetchRoomState(ctx context.Context, roomID string) (domain.RoomState, error) {
	var state domain.RoomState
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/room/%s/state", roomID), nil, &state); err != nil {
		return domain.RoomState{}, fmt.Errorf("failed to fetch room state: %w", err)
	}

	return state, nil
}

func (c *Client) SendControlEvent(ctx context.Context, event domain.ControlEvent) error {
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/room/%s/control", event.RoomID), event, nil); err != nil {
		return fmt.Errorf("failed to send control event: %w", err)
	}

	return nil
}

func (c *Client) ResetRoom(ctx context.Context, roomID string, by domain.User) error {
	body := domain.ResetSignal{RoomID: roomID, By: by}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/room/%s/reset", roomID), body, nil); err != nil {
		return fmt.Errorf("failed to reset room: %w", err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Error != "" {
			return fmt.Errorf("backbone returned %d: %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("backbone returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}
