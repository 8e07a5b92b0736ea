package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// PocketBaseStore is a Store backed by a PocketBase instance's REST API.
// PocketBase ships no official Go SDK, so this client is hand-rolled
// against its documented record-CRUD and list-filter contract (the same
// `filter`/`sort`/`page`/`perPage` query parameters PocketBase's JS and
// Dart SDKs use).
type PocketBaseStore struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	authToken string
	email     string
	password  string
}

// NewPocketBaseStore creates a Store against a running PocketBase instance,
// authenticating as the given admin/superuser account on first use.
func NewPocketBaseStore(baseURL, email, password string) *PocketBaseStore {
	return &PocketBaseStore{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		email:      email,
		password:   password,
	}
}

func (s *PocketBaseStore) Collection(name string) Collection {
	return &pocketBaseCollection{store: s, name: name}
}

// Ping checks that the PocketBase instance is reachable via its health endpoint.
func (s *PocketBaseStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pocketbase health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pocketbase health check: status %d", resp.StatusCode)
	}
	return nil
}

func (s *PocketBaseStore) authenticate(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.authToken != "" {
		tok := s.authToken
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	body, _ := json.Marshal(map[string]string{
		"identity": s.email,
		"password": s.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/collections/_superusers/auth-with-password",
		bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticating with pocketbase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("pocketbase auth failed with status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding pocketbase auth response: %w", err)
	}

	s.mu.Lock()
	s.authToken = out.Token
	s.mu.Unlock()
	return out.Token, nil
}

type pocketBaseCollection struct {
	store *PocketBaseStore
	name  string
}

func (c *pocketBaseCollection) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	tok, err := c.store.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	full := c.store.baseURL + "/api/collections/" + c.name + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tok)

	return c.store.httpClient.Do(req)
}

func (c *pocketBaseCollection) Create(ctx context.Context, rec Record) (Record, error) {
	resp, err := c.do(ctx, http.MethodPost, "/records", nil, rec)
	if err != nil {
		return nil, fmt.Errorf("creating %s record: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusError(c.name, resp)
	}
	return decodeRecord(resp.Body)
}

func (c *pocketBaseCollection) Get(ctx context.Context, id string) (Record, error) {
	resp, err := c.do(ctx, http.MethodGet, "/records/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s record %s: %w", c.name, id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.name, resp)
	}
	return decodeRecord(resp.Body)
}

func (c *pocketBaseCollection) Update(ctx context.Context, id string, patch Record) (Record, error) {
	resp, err := c.do(ctx, http.MethodPatch, "/records/"+url.PathEscape(id), nil, patch)
	if err != nil {
		return nil, fmt.Errorf("updating %s record %s: %w", c.name, id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.name, resp)
	}
	return decodeRecord(resp.Body)
}

func (c *pocketBaseCollection) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/records/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return fmt.Errorf("deleting %s record %s: %w", c.name, id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(c.name, resp)
	}
	return nil
}

func (c *pocketBaseCollection) List(ctx context.Context, opts ListOptions) (Page, error) {
	q := url.Values{}
	if !opts.Filter.IsZero() {
		q.Set("filter", opts.Filter.String())
	}
	if len(opts.Sort) > 0 {
		q.Set("sort", sortParam(opts.Sort))
	}
	perPage := opts.Limit
	if perPage <= 0 {
		perPage = 25
	}
	page := opts.Offset/perPage + 1
	q.Set("perPage", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	resp, err := c.do(ctx, http.MethodGet, "/records", q, nil)
	if err != nil {
		return Page{}, fmt.Errorf("listing %s records: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, statusError(c.name, resp)
	}

	var out struct {
		Items      []Record `json:"items"`
		TotalItems int      `json:"totalItems"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Page{}, fmt.Errorf("decoding %s list response: %w", c.name, err)
	}
	return Page{Records: out.Items, Total: out.TotalItems}, nil
}

func (c *pocketBaseCollection) FindOne(ctx context.Context, filter Query) (Record, error) {
	page, err := c.List(ctx, ListOptions{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, ErrNotFound
	}
	return page.Records[0], nil
}

func sortParam(fields []SortField) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		if f.Desc {
			out += "-" + f.Field
		} else {
			out += "+" + f.Field
		}
	}
	return out
}

func decodeRecord(r io.Reader) (Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

func statusError(collection string, resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("pocketbase %s request failed with status %d: %s", collection, resp.StatusCode, data)
}
