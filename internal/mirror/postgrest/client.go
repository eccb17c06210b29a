// Package postgrest talks to the managed Postgres mirror through its
// PostgREST-style HTTP surface.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// UpsertRow POSTs the row with merge-duplicates resolution, so repeated
// syncs of the same record are idempotent.
func (c *Client) UpsertRow(ctx context.Context, table string, row map[string]any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upsert request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	return c.do(req)
}

func (c *Client) DeleteRow(ctx context.Context, table, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", c.baseURL, table, url.QueryEscape(id)), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mirror request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bounded read keeps error messages useful without trusting the
		// remote to be terse.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mirror returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
