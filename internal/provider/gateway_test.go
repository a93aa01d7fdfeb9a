package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewaySendSuccess(t *testing.T) {
	var got gatewayRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "secret", nil)
	err := client.Send(context.Background(), "+254700000001", "hello")

	require.NoError(t, err)
	assert.Equal(t, "+254700000001", got.To)
	assert.Equal(t, "hello", got.Message)
}

func TestGatewayClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, false},
		{"gateway timeout", http.StatusRequestTimeout, false},
		{"server error", http.StatusInternalServerError, false},
		{"bad gateway", http.StatusBadGateway, false},
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"not found", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(gatewayResponse{Error: "nope"})
			}))
			defer server.Close()

			client := NewGatewayClient(server.URL, "", nil)
			err := client.Send(context.Background(), "+254700000001", "hello")

			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestGatewayUnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewGatewayClient(server.URL, "", nil)
	err := client.Send(context.Background(), "+254700000001", "hello")

	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestGatewayRespectsContextCancel(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and cancel the request context; otherwise this handler blocks
		// forever and the deferred Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := NewGatewayClient(server.URL, "", nil)
	err := client.Send(ctx, "+254700000001", "hello")

	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent("rejected", nil)))
	assert.False(t, IsPermanent(Transient("flaky", nil)))
	assert.False(t, IsPermanent(assert.AnError))
	assert.False(t, IsPermanent(nil))
}
