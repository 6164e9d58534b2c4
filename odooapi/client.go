// Package odooapi is the HTTP/JSON client for the Odoo android_api module:
// paginated entity listings with an optional "since" filter, and batch
// creation correlated by mobile UID.
package odooapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"context"
)

const (
	// DefaultTimeout matches the server transport configuration.
	DefaultTimeout = 30 * time.Second
	// DefaultPageLimit is the page size for list calls; the server clamps
	// limit to 1000.
	DefaultPageLimit = 500
	// MaxBatchSize is the server-enforced cap on create batches.
	MaxBatchSize = 100
)

// Client calls the android_api endpoints. The API credential is passed per
// call so a credential change never requires rebuilding the client.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the given base endpoint.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
}

// ListResponse is the paginated envelope returned by the GET endpoints.
type ListResponse struct {
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Count  int               `json:"count"`
	Data   []json.RawMessage `json:"data"`
}

// CreateResponse is the envelope returned by the batch POST endpoints. Each
// created item echoes the submitted mobile_uid and carries the server id.
type CreateResponse struct {
	Count int               `json:"count"`
	Data  []json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// List fetches one page from a list endpoint. since, when non-empty, asks the
// server for records whose write_date is at or after that ISO-8601 instant.
func (c *Client) List(ctx context.Context, apiKey, path, since string, limit, offset int) (*ListResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if since != "" {
		q.Set("since", since)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asAPIError(resp)
	}
	var list ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return &list, nil
}

// ListAll pages through a list endpoint until the server runs out of records.
func (c *Client) ListAll(ctx context.Context, apiKey, path, since string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	offset := 0
	for {
		page, err := c.List(ctx, apiKey, path, since, DefaultPageLimit, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Data...)
		if page.Count < DefaultPageLimit || len(page.Data) == 0 {
			return items, nil
		}
		offset += page.Count
	}
}

// CreateBatch posts a batch of items (at most MaxBatchSize) to a create
// endpoint. The server upserts by mobile_uid, which makes retries idempotent.
func (c *Client) CreateBatch(ctx context.Context, apiKey, path string, items []map[string]any) (*CreateResponse, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("create batch cannot be empty")
	}
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("create batch exceeds %d items", MaxBatchSize)
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asAPIError(resp)
	}
	var created CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}
	return &created, nil
}

// CreatedItem is the minimal shape needed to correlate a created item with
// the local provisional record.
type CreatedItem struct {
	ID        *int64 `json:"id"`
	MobileUID string `json:"mobile_uid"`
}

// FindByMobileUID searches a create-response batch for the item echoing the
// given mobile UID. The second return is false when no item matches or the
// matching item lacks a server ID.
func (r *CreateResponse) FindByMobileUID(uid string) (json.RawMessage, bool) {
	for _, raw := range r.Data {
		var item CreatedItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if item.MobileUID == uid {
			if item.ID == nil || *item.ID <= 0 {
				return nil, false
			}
			return raw, true
		}
	}
	return nil, false
}

func (c *Client) asAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var env errorEnvelope
	message := ""
	if err := json.Unmarshal(body, &env); err == nil {
		message = env.Error
	}
	c.logger.Warn("server returned error response",
		"status", resp.StatusCode, "message", message)
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
