// Package client talks to a pooldb server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreamware/pooldb/internal/command"
	"github.com/dreamware/pooldb/internal/service"
)

// DefaultTimeout bounds a whole request when no http.Client is supplied.
const DefaultTimeout = 5 * time.Second

// APIError is a non-2xx reply.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusServiceUnavailable
}

// Client is safe for concurrent use.
type Client struct {
	http *http.Client
	base string
}

// New creates a client for the server at baseURL. A nil httpClient gets a
// client with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: httpClient, base: strings.TrimRight(baseURL, "/")}
}

// Update sends an update. The command is validated locally first.
func (c *Client) Update(ctx context.Context, cmd command.Update) (service.UpdateResult, error) {
	var out service.UpdateResult
	if err := cmd.Validate(); err != nil {
		return out, err
	}
	err := c.postJSON(ctx, "/update", cmd, &out)
	return out, err
}

// Query sends a query. The command is validated locally first.
func (c *Client) Query(ctx context.Context, cmd command.Query) (service.QueryResult, error) {
	var out service.QueryResult
	if err := cmd.Validate(); err != nil {
		return out, err
	}
	err := c.postJSON(ctx, "/query", cmd, &out)
	return out, err
}

// Health returns nil when the server answers /health with 200.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
