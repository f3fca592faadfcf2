package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"specimenreview/specimen"
)

// RecordsPath is the collection endpoint served by the mock API.
const RecordsPath = "/api/mock/records"

// NetworkError reports a non-successful HTTP response.
type NetworkError struct {
	Op         string
	StatusCode int
	StatusText string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to %s: %s", e.Op, e.StatusText)
}

// Client talks to the records endpoint. It keeps no state between calls and
// never retries.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

// WithHTTPClient swaps the transport used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll returns every record in load order.
func (c *Client) FetchAll(ctx context.Context) ([]specimen.Record, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	var records []specimen.Record
	if err := c.do(req, "fetch records", &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []specimen.Record{}
	}
	return records, nil
}

type patchBody struct {
	ID     string           `json:"id"`
	Status *specimen.Status `json:"status,omitempty"`
	Note   *string          `json:"note,omitempty"`
}

// Update sends exactly the provided fields and returns the server's canonical
// record.
func (c *Client) Update(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	body, err := json.Marshal(patchBody{ID: id, Status: updates.Status, Note: updates.Note})
	if err != nil {
		return specimen.Record{}, fmt.Errorf("recordstore: encode update: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, body)
	if err != nil {
		return specimen.Record{}, err
	}

	var rec specimen.Record
	if err := c.do(req, "update record", &rec); err != nil {
		return specimen.Record{}, err
	}
	return rec, nil
}

func (c *Client) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+RecordsPath, r)
	if err != nil {
		return nil, fmt.Errorf("recordstore: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("recordstore: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("recordstore: %s: decode response: %w", op, err)
	}
	return nil
}

// statusText strips the numeric code from resp.Status ("404 Not Found").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if text == "" {
		text = strconv.Itoa(resp.StatusCode)
	}
	return text
}
