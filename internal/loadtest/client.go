package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Rejected reports whether the service refused the call for a reason the
// economy expects under contention.
func (e *APIError) Rejected() bool {
	return e.Code == "aborted" || e.Code == "failed-precondition" || e.Code == "resource-exhausted"
}

// Client is a small JSON client for the gubs HTTP API.
type Client struct {
	client    *http.Client
	baseURL   string
	uidHeader string
}

// NewClient creates a client with the given timeout.
func NewClient(baseURL, uidHeader string, timeout time.Duration) *Client {
	return &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		uidHeader: uidHeader,
	}
}

// Do sends a request as uid and decodes a 2xx body into out.
func (c *Client) Do(ctx context.Context, method, path, uid string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set(c.uidHeader, uid)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Do(ctx, http.MethodGet, "/healthz", "", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

type syncRequest struct {
	Delta float64 `json:"delta"`
}

type syncResponse struct {
	Score int64 `json:"score"`
}

// Sync reports delta clicks for uid.
func (c *Client) Sync(ctx context.Context, uid string, delta int64) (int64, error) {
	var res syncResponse
	err := c.Do(ctx, http.MethodPost, "/v1/sync", uid, syncRequest{Delta: float64(delta)}, &res)
	return res.Score, err
}

type purchaseRequest struct {
	Item     string `json:"item"`
	Quantity int64  `json:"quantity"`
}

// PurchaseResult is the body of a successful item purchase.
type PurchaseResult struct {
	Score int64 `json:"score"`
	Owned int64 `json:"owned"`
	Cost  int64 `json:"cost"`
}

// Purchase buys quantity units of item for uid.
func (c *Client) Purchase(ctx context.Context, uid, item string, quantity int64) (PurchaseResult, error) {
	var res PurchaseResult
	err := c.Do(ctx, http.MethodPost, "/v1/purchase/item", uid, purchaseRequest{Item: item, Quantity: quantity}, &res)
	return res, err
}

// PlayerState is the subset of GET /v1/state used for verification.
type PlayerState struct {
	UID   string           `json:"uid"`
	Score int64            `json:"score"`
	Owned map[string]int64 `json:"owned"`
}

// State reads the ledger and inventory of uid.
func (c *Client) State(ctx context.Context, uid string) (PlayerState, error) {
	var st PlayerState
	err := c.Do(ctx, http.MethodGet, "/v1/state", uid, nil, &st)
	return st, err
}

// SetUsername claims name for uid.
func (c *Client) SetUsername(ctx context.Context, uid, name string) error {
	return c.Do(ctx, http.MethodPut, "/v1/profile/username", uid, map[string]string{"username": name}, nil)
}

// SetScore overwrites the score of username as admin.
func (c *Client) SetScore(ctx context.Context, admin, username string, score int64) error {
	return c.Do(ctx, http.MethodPost, "/v1/admin/score", admin, map[string]any{"username": username, "score": score}, nil)
}

// classify buckets a call error into the run statistics.
func classify(err error) (rejected bool) {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Rejected()
}
