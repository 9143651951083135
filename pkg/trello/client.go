// Package trello is a thin REST client for the parts of the Trello API the
// service needs: listing boards and webhooks, registering webhooks and
// fetching board contents for document generation.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Provider is the subset of the Trello API used by the reconciler and the
// generation worker.
type Provider interface {
	ListBoards(ctx context.Context, token string) ([]Board, error)
	ListWebhooks(ctx context.Context, token string) ([]Webhook, error)
	RegisterWebhook(ctx context.Context, token, callbackURL, boardID, description string) (*Webhook, error)
	GetBoardData(ctx context.Context, token, boardID string) (json.RawMessage, error)
}

// Board is an open board visible to a token.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// Webhook is a registration owned by a token.
type Webhook struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	CallbackURL string `json:"callbackURL"`
	IDModel     string `json:"idModel"`
	Active      bool   `json:"active"`
}

// Client talks to the Trello REST API with an application key. User tokens
// are passed per call since one process serves many accounts.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	maxBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a throttled call is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithMaxBackoff caps the wait between throttled attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// NewClient creates a Client. timeout bounds every individual call.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 1,
		maxBackoff: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBoards returns the open boards of the token's member.
func (c *Client) ListBoards(ctx context.Context, token string) ([]Board, error) {
	q := url.Values{}
	q.Set("token", token)
	q.Set("fields", "id,name,desc")
	q.Set("filter", "open")

	var boards []Board
	if err := c.do(ctx, "trello.list_boards", http.MethodGet, "/members/me/boards", q, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// ListWebhooks returns the webhooks registered under token.
func (c *Client) ListWebhooks(ctx context.Context, token string) ([]Webhook, error) {
	var hooks []Webhook
	path := "/tokens/" + url.PathEscape(token) + "/webhooks"
	if err := c.do(ctx, "trello.list_webhooks", http.MethodGet, path, url.Values{}, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

// RegisterWebhook creates a webhook for boardID that posts to callbackURL.
func (c *Client) RegisterWebhook(ctx context.Context, token, callbackURL, boardID, description string) (*Webhook, error) {
	q := url.Values{}
	q.Set("token", token)
	q.Set("callbackURL", callbackURL)
	q.Set("idModel", boardID)
	if description != "" {
		q.Set("description", description)
	}

	var hook Webhook
	if err := c.do(ctx, "trello.register_webhook", http.MethodPost, "/webhooks", q, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// GetBoardData returns the board with its open lists and cards as raw JSON.
func (c *Client) GetBoardData(ctx context.Context, token, boardID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("token", token)
	q.Set("fields", "name,desc")
	q.Set("lists", "open")
	q.Set("cards", "open")

	var raw json.RawMessage
	if err := c.do(ctx, "trello.board_data", http.MethodGet, "/boards/"+url.PathEscape(boardID), q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// do executes one API call, retrying on 429 and classifying failures:
// transport errors, timeouts, 429 and 5xx are transient, other non-2xx
// statuses are validation errors.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, result any) error {
	q.Set("key", c.apiKey)
	endpoint := c.baseURL + path + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return apperr.Validation(op, fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Transient(op, fmt.Errorf("%s %s: %w", method, op, redact(err)))
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()
		if readErr != nil {
			return apperr.Transient(op, fmt.Errorf("reading response body: %w", readErr))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, op)
			if attempt == c.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return apperr.Transient(op, ctx.Err())
			case <-time.After(c.retryAfter(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode >= 500 {
			return apperr.Transient(op, fmt.Errorf("status %d on %s %s: %s", resp.StatusCode, method, op, truncate(body)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apperr.Validation(op, fmt.Errorf("status %d on %s %s: %s", resp.StatusCode, method, op, truncate(body)))
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return apperr.Validation(op, fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	return apperr.Transient(op, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr))
}

// retryAfter reads Retry-After and falls back to exponential backoff.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt)) * time.Second
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

// redact strips the query string from url errors so tokens never reach logs.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if u, perr := url.Parse(uerr.URL); perr == nil {
			u.RawQuery = ""
			if i := strings.Index(u.Path, "/tokens/"); i >= 0 {
				u.Path = u.Path[:i] + "/tokens/REDACTED/webhooks"
			}
			return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
		}
	}
	return err
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
