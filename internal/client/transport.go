package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RequestTimeout bounds every round trip; a call that exceeds it fails instead
// of hanging.
const RequestTimeout = 20 * time.Second

// TokenStore holds the single bearer credential shared by all calls.
type TokenStore interface {
	Token() string
	Clear()
}

// MemoryTokenStore is a process-wide, last-write-wins token holder.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Response is the parsed outcome of a round trip.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport is the single point of outbound HTTP communication. Token store
// and logger are injected so tests stay deterministic without touching
// ambient globals. It never retries, caches or queues.
type Transport struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *log.Logger
}

func NewTransport(baseURL string, tokens TokenStore, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: RequestTimeout},
		tokens:  tokens,
		logger:  logger,
	}
}

func (t *Transport) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, query, nil)
}

func (t *Transport) Post(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, nil, body)
}

func (t *Transport) Put(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPut, path, nil, body)
}

func (t *Transport) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPatch, path, nil, body)
}

func (t *Transport) Delete(ctx context.Context, path string) (*Response, error) {
	return t.do(ctx, http.MethodDelete, path, nil, nil)
}

func (t *Transport) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	endpoint := t.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// Attach the credential when one is held; its absence never blocks the
	// call, unauthenticated requests are legal at this layer.
	if token := t.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		// No response at all: network failure or timeout, distinct from a
		// server-returned error.
		t.logger.Printf("%s %s: no response: %v", method, path, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Printf("%s %s: reading body: %v", method, path, err)
		return nil, err
	}

	out := &Response{StatusCode: resp.StatusCode, Body: data}
	if resp.StatusCode < 400 {
		return out, nil
	}

	detail := decodeDetail(data)
	t.logger.Printf("%s %s failed: status=%d body=%q", method, path, resp.StatusCode, data)

	if resp.StatusCode == http.StatusUnauthorized {
		t.tokens.Clear()
		t.logger.Printf("%s %s: session no longer valid, credential discarded", method, path)
	}

	return out, &StatusError{Code: resp.StatusCode, Detail: detail}
}

// decodeDetail extracts the {"detail": string} error body every endpoint uses,
// falling back to the raw body.
func decodeDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}
