// Package indexer is a REST client for the enhanced-transaction API behind
// the feed: signature listings per address and full swap envelopes by
// signature, with bounded retries and backoff.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultPageSize   = 100
	DefaultBatchSize  = 100
)

// Client talks to the enhanced-transaction REST API.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	pageSize   int
	batchSize  int
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sets the api-key query parameter sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPageSize sets the page size for history pagination.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithBatchSize sets the signature count per transaction-fetch request.
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		c.batchSize = n
	}
}

// NewClient creates a new enhanced-transaction API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		pageSize:   DefaultPageSize,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignatureInfo is one entry of an address signature listing.
type SignatureInfo struct {
	Signature        string  `json:"signature"`
	Slot             int64   `json:"slot"`
	Timestamp        int64   `json:"timestamp"` // Unix timestamp in seconds
	TransactionError *string `json:"transactionError,omitempty"`
}

// SignaturesOpts bounds a listing. Times are Unix seconds, the feed's
// native unit. Zero values mean no bound.
type SignaturesOpts struct {
	Since  int64  // inclusive lower time bound
	Until  int64  // exclusive upper time bound
	Limit  int    // page size, 0 = client default
	Before string // list entries strictly older than this signature
}

// GetSignatures lists transaction signatures for an address, newest first.
// One page per call; pass the last signature as Before for the next page.
func (c *Client) GetSignatures(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	var sigs []SignatureInfo
	path := "/v0/addresses/" + url.PathEscape(address) + "/signatures"
	if err := c.do(ctx, http.MethodGet, path, signatureQuery(opts), nil, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// transactionsRequest is the batched transaction-fetch request body.
type transactionsRequest struct {
	Transactions []string `json:"transactions"`
}

// GetTransactions fetches full envelopes for the given signatures, issuing
// one request per batch of at most the configured batch size.
func (c *Client) GetTransactions(ctx context.Context, signatures []string) ([]*domain.RawTransaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	var txs []*domain.RawTransaction
	for start := 0; start < len(signatures); start += c.batchSize {
		end := min(start+c.batchSize, len(signatures))

		var batch []*domain.RawTransaction
		body := transactionsRequest{Transactions: signatures[start:end]}
		if err := c.do(ctx, http.MethodPost, "/v0/transactions", nil, body, &batch); err != nil {
			return nil, err
		}
		txs = append(txs, batch...)
	}
	return txs, nil
}

// GetTransactionsForAddress pages the address transaction history, newest
// first, until the pages run out or the Since bound is crossed.
func (c *Client) GetTransactionsForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]*domain.RawTransaction, error) {
	page := SignaturesOpts{Limit: c.pageSize}
	if opts != nil {
		page = *opts
		if page.Limit <= 0 {
			page.Limit = c.pageSize
		}
	}

	path := "/v0/addresses/" + url.PathEscape(address) + "/transactions"

	var txs []*domain.RawTransaction
	for {
		var batch []*domain.RawTransaction
		if err := c.do(ctx, http.MethodGet, path, signatureQuery(&page), nil, &batch); err != nil {
			return nil, err
		}
		txs = append(txs, batch...)

		if len(batch) < page.Limit {
			return txs, nil
		}
		oldest := batch[len(batch)-1]
		if page.Since > 0 && oldest.Timestamp < page.Since {
			return txs, nil
		}
		page.Before = oldest.Signature
	}
}

func signatureQuery(opts *SignaturesOpts) url.Values {
	query := url.Values{}
	if opts == nil {
		return query
	}
	if opts.Since > 0 {
		query.Set("since", strconv.FormatInt(opts.Since, 10))
	}
	if opts.Until > 0 {
		query.Set("until", strconv.FormatInt(opts.Until, 10))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Before != "" {
		query.Set("before", opts.Before)
	}
	return query
}

// do performs one API call with retries. Network errors, 5xx and 429 are
// retried with exponential backoff (jittered for 429 so synchronized
// clients spread out); other non-200 statuses fail immediately.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("api-key", c.apiKey)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = &TransientError{Err: fmt.Errorf("http request: %w", err)}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransientError{Err: fmt.Errorf("read response: %w", err)}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &TransientError{Err: fmt.Errorf("rate limited (429)")}
			if c.retryDelay > 0 {
				delay += rand.N(c.retryDelay)
			}
			continue
		case resp.StatusCode >= 500:
			lastErr = &TransientError{Err: fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(respBody))}
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
