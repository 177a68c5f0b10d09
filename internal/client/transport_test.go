package client

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTransportAttachesBearerToken(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tokens := &MemoryTokenStore{}
	tokens.Set("secret-token")
	transport := NewTransport(server.URL, tokens, testLogger())

	resp, err := transport.Get(context.Background(), "/modules", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestTransportWithoutTokenStillCalls(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := NewTransport(server.URL, &MemoryTokenStore{}, testLogger())

	_, err := transport.Get(context.Background(), "/modules", nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestTransportDiscardsTokenOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Not authenticated"}`))
	}))
	defer server.Close()

	tokens := &MemoryTokenStore{}
	tokens.Set("stale-token")
	transport := NewTransport(server.URL, tokens, testLogger())

	_, err := transport.Get(context.Background(), "/modules", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.Empty(t, tokens.Token(), "credential must be discarded after a 401")
}

func TestTransportStatusErrorCarriesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Module not found"}`))
	}))
	defer server.Close()

	transport := NewTransport(server.URL, &MemoryTokenStore{}, testLogger())

	_, err := transport.Get(context.Background(), "/modules/7", nil)
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, "Module not found", status.Detail)
	assert.False(t, errors.Is(err, ErrSessionExpired))
}

func TestTransportNetworkFailureIsNotStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse the connection

	transport := NewTransport(server.URL, &MemoryTokenStore{}, testLogger())

	_, err := transport.Get(context.Background(), "/modules", nil)
	require.Error(t, err)
	var status *StatusError
	assert.False(t, errors.As(err, &status))
}
