package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the public Firebase endpoint of the HN API.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

const userAgent = "hn-apicheck/1.0"

// Client issues read-only GET requests against the HN API.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	http        *http.Client
	baseURL     string
	concurrency int
}

type Option func(*Client)

// WithBaseURL points the client at another endpoint, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithConcurrency bounds in-flight requests for batch fetches. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 15 * time.Second},
		baseURL:     DefaultBaseURL,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is an undecoded HTTP response from the API.
type Response struct {
	StatusCode int
	Body       []byte
}

// TopStories returns up to 500 top story IDs in rank order.
func (c *Client) TopStories(ctx context.Context) ([]int64, error) {
	return c.list(ctx, "top stories", "/topstories.json")
}

// NewStories returns up to 500 newest story IDs.
func (c *Client) NewStories(ctx context.Context) ([]int64, error) {
	return c.list(ctx, "new stories", "/newstories.json")
}

// BestStories returns up to 500 best story IDs.
func (c *Client) BestStories(ctx context.Context) ([]int64, error) {
	return c.list(ctx, "best stories", "/beststories.json")
}

func (c *Client) list(ctx context.Context, op, path string) ([]int64, error) {
	body, err := c.getOK(ctx, op, path)
	if err != nil {
		return nil, err
	}
	if IsNull(body) {
		return nil, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("expected array, got null")}
	}

	var entries []*int64
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("decode: %w", err)}
	}
	ids, err := idList(entries)
	if err != nil {
		return nil, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: err}
	}
	slog.Debug("hn: fetched list", "op", op, "count", len(ids))
	return ids, nil
}

// ItemResponse fetches an item without enforcing the status code.
// Only transport failures are returned as errors.
func (c *Client) ItemResponse(ctx context.Context, id int64) (*Response, error) {
	return c.get(ctx, fmt.Sprintf("item %d", id), itemPath(id))
}

// GetItem fetches a single item as raw JSON. A literal null body means the ID
// does not resolve to an item and is not an error; see IsNull.
func (c *Client) GetItem(ctx context.Context, id int64) (json.RawMessage, error) {
	op := fmt.Sprintf("item %d", id)
	body, err := c.getOK(ctx, op, itemPath(id))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("invalid JSON body")}
	}
	return json.RawMessage(body), nil
}

// GetStory fetches an item as a Story. It returns nil without error both when
// the item does not exist and when it cannot be decoded as a story.
func (c *Client) GetStory(ctx context.Context, id int64) (*Story, error) {
	raw, err := c.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := DecodeStory(raw)
	if err != nil {
		slog.Debug("hn: item not decodable as story", "id", id, "error", err)
		return nil, nil
	}
	return s, nil
}

// GetComment fetches an item as a Comment with the same absent semantics as GetStory.
func (c *Client) GetComment(ctx context.Context, id int64) (*Comment, error) {
	raw, err := c.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	cm, err := DecodeComment(raw)
	if err != nil {
		slog.Debug("hn: item not decodable as comment", "id", id, "error", err)
		return nil, nil
	}
	return cm, nil
}

// GetStories fetches stories and returns them in the order of ids.
// Absent stories are nil entries. The first error aborts the batch.
func (c *Client) GetStories(ctx context.Context, ids []int64) ([]*Story, error) {
	results := make([]*Story, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			s, err := c.GetStory(gctx, id)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MaxItemID returns the current largest item ID.
func (c *Client) MaxItemID(ctx context.Context) (int64, error) {
	const op = "max item"
	body, err := c.getOK(ctx, op, "/maxitem.json")
	if err != nil {
		return 0, err
	}
	var id *int64
	if err := json.Unmarshal(body, &id); err != nil {
		return 0, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("decode: %w", err)}
	}
	if id == nil {
		return 0, &ProtocolError{Op: op, Status: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("expected integer, got null")}
	}
	slog.Debug("hn: fetched max item", "id", *id)
	return *id, nil
}

func itemPath(id int64) string { return fmt.Sprintf("/item/%d.json", id) }

func (c *Client) getOK(ctx context.Context, op, path string) ([]byte, error) {
	resp, err := c.get(ctx, op, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Op: op, Status: resp.StatusCode, Body: truncate(resp.Body)}
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, op, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	slog.Debug("hn: response", "op", op, "status", resp.StatusCode, "bytes", len(body))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
