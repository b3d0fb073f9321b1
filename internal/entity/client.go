package entity

import (
	"bytes"
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

	"github.com/sirupsen/logrus"
)

// Client talks to the hosted entity API:
//
//	GET    {base}/entities/{Kind}?q={json}&sort={field}
//	POST   {base}/entities/{Kind}
//	PUT    {base}/entities/{Kind}/{id}
//	DELETE {base}/entities/{Kind}/{id}
//
// Only GET requests are retried, and only on 429. Everything else is
// classified and returned so callers decide.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a client for the API rooted at baseURL. The apiKey is
// sent in the api_key header when non-empty.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
	}
}

// List returns every record of kind.
func (c *Client) List(ctx context.Context, kind Kind, orderBy string) ([]Record, error) {
	return c.Filter(ctx, kind, nil, orderBy)
}

// Filter returns the records of kind matching every field of where.
func (c *Client) Filter(ctx context.Context, kind Kind, where Predicate, orderBy string) ([]Record, error) {
	query := url.Values{}
	if len(where) > 0 {
		q, err := json.Marshal(where)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		query.Set("q", string(q))
	}
	if orderBy != "" {
		query.Set("sort", orderBy)
	}

	path := "/entities/" + string(kind)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, &RejectedError{Op: "filter " + string(kind), Status: http.StatusOK, Message: err.Error()}
	}
	return recs, nil
}

// Create inserts a record and returns it with its assigned id and
// created_at.
func (c *Client) Create(ctx context.Context, kind Kind, fields Record) (Record, error) {
	body, err := c.do(ctx, http.MethodPost, "/entities/"+string(kind), fields)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Update applies patch to the record and returns the stored result.
func (c *Client) Update(ctx context.Context, kind Kind, id string, patch Record) (Record, error) {
	body, err := c.do(ctx, http.MethodPut, "/entities/"+string(kind)+"/"+url.PathEscape(id), patch)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, kind Kind, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/entities/"+string(kind)+"/"+url.PathEscape(id), nil)
	return err
}

// do builds the request, sends it and classifies the outcome. A GET that
// hits 429 waits and tries again up to maxRetries times.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	op := method + " " + path

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("api_key", c.apiKey)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, &NetworkError{Op: op, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", readErr)}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &NetworkError{Op: op, Err: errors.New("rate limited (429)")}
			if attempt == retries {
				return nil, lastErr
			}
			wait := retryAfterDuration(resp, attempt)
			logrus.WithFields(logrus.Fields{"op": op, "wait": wait}).Debug("entity store rate limited")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		case resp.StatusCode >= 500:
			return nil, &NetworkError{
				Op:  op,
				Err: fmt.Errorf("server error (%d): %s", resp.StatusCode, errorMessage(respBody)),
			}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &RejectedError{Op: op, Status: resp.StatusCode, Message: errorMessage(respBody)}
		}

		return respBody, nil
	}

	return nil, lastErr
}

// errorMessage extracts {"message": ...} or {"error": ...} from an error
// body, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
