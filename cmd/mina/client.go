package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"mina/internal/daemon"
)

// apiClient talks to the daemon HTTP API.
type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(address, token string) *apiClient {
	base := strings.TrimSpace(address)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		base:   base,
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: 65 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.base == "" {
		return errors.New("daemon API address is not configured")
	}
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon API: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon API returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) status(ctx context.Context) (*daemon.StatusResponse, error) {
	var resp daemon.StatusResponse
	if err := c.get(ctx, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) events(ctx context.Context, room string, since uint64, limit int, follow bool) (*daemon.EventStreamResponse, error) {
	query := url.Values{}
	if room != "" {
		query.Set("room", room)
	}
	if since > 0 {
		query.Set("since", fmt.Sprintf("%d", since))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if follow {
		query.Set("follow", "1")
	}
	var resp daemon.EventStreamResponse
	if err := c.get(ctx, "/api/events", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `minad`", base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}
