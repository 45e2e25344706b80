package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
)

// Client talks JSON over HTTP to the CareKeeper backend and hands out
// per-entity-type repositories sharing one connection pool and token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client (tests, custom TLS).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/ping", nil, nil)
}

// Repository returns the CRUD repository for one entity type.
func (c *Client) Repository(et models.EntityType) *HTTPRepository {
	return &HTTPRepository{client: c, entityType: et}
}

// HTTPRepository implements Repository (and IncrementalLister) for one
// entity type against {base}/api/v1/{entityType}.
type HTTPRepository struct {
	client     *Client
	entityType models.EntityType
}

// wireRecord is the JSON shape exchanged with the backend.
type wireRecord struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

type listResponse struct {
	Records    []wireRecord `json:"records"`
	DeletedIDs []string     `json:"deleted_ids,omitempty"`
	ServerTime time.Time    `json:"server_time"`
}

func (r *HTTPRepository) toWire(rec *models.Record) wireRecord {
	return wireRecord{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		UpdatedAt: rec.UpdatedAt,
		Payload:   rec.Payload,
	}
}

// fromWire converts a canonical remote record into its local form. A record
// fresh off the wire is by definition in sync with the backend.
func (r *HTTPRepository) fromWire(w wireRecord) models.Record {
	return models.Record{
		ID:         w.ID,
		AccountID:  w.AccountID,
		EntityType: r.entityType,
		IsSynced:   true,
		UpdatedAt:  w.UpdatedAt.UTC(),
		Payload:    w.Payload,
	}
}

func (r *HTTPRepository) List(ctx context.Context, accountID string) (*Page, error) {
	return r.list(ctx, accountID, nil)
}

func (r *HTTPRepository) ListSince(ctx context.Context, accountID string, since time.Time) (*Page, error) {
	return r.list(ctx, accountID, &since)
}

func (r *HTTPRepository) list(ctx context.Context, accountID string, since *time.Time) (*Page, error) {
	q := url.Values{"account_id": {accountID}}
	if since != nil {
		q.Set("updated_since", since.UTC().Format(time.RFC3339Nano))
	}

	var resp listResponse
	err := r.client.do(ctx, http.MethodGet, r.path("")+"?"+q.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}

	page := &Page{DeletedIDs: resp.DeletedIDs, ServerTime: resp.ServerTime.UTC()}
	for _, w := range resp.Records {
		page.Records = append(page.Records, r.fromWire(w))
	}
	return page, nil
}

func (r *HTTPRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	var w wireRecord
	if err := r.client.do(ctx, http.MethodGet, r.path(id), nil, &w); err != nil {
		return nil, err
	}
	rec := r.fromWire(w)
	return &rec, nil
}

func (r *HTTPRepository) Create(ctx context.Context, rec *models.Record) (*models.Record, error) {
	var w wireRecord
	if err := r.client.do(ctx, http.MethodPost, r.path(""), r.toWire(rec), &w); err != nil {
		return nil, err
	}
	created := r.fromWire(w)
	return &created, nil
}

func (r *HTTPRepository) Update(ctx context.Context, rec *models.Record) (*models.Record, error) {
	var w wireRecord
	if err := r.client.do(ctx, http.MethodPut, r.path(rec.ID), r.toWire(rec), &w); err != nil {
		return nil, err
	}
	updated := r.fromWire(w)
	return &updated, nil
}

func (r *HTTPRepository) Delete(ctx context.Context, id string) error {
	return r.client.do(ctx, http.MethodDelete, r.path(id), nil, nil)
}

func (r *HTTPRepository) path(id string) string {
	p := "/api/v1/" + string(r.entityType)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// do performs one request and maps the outcome onto the shared error
// taxonomy: transport failures and 5xx are transient
// (ErrNetworkUnavailable), 404 is ErrNotFound, any other 4xx is a permanent
// refusal (ErrRemoteRejected).
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, shared.ErrNetworkUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, shared.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, shared.ErrNetworkUnavailable)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s: %w", method, path, resp.StatusCode, bytes.TrimSpace(msg), shared.ErrRemoteRejected)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
