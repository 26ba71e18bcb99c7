package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestBaseURL
func TestBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:8000/ws/live-analytics", want: "http://localhost:8000"},
		{in: "wss://dash.example.com:8000/ws/live-analytics", want: "https://dash.example.com:8000"},
		{in: "http://localhost:8000", wantErr: true},
		{in: "ws:///ws/live-analytics", wantErr: true},
	}

	for _, tt := range tests {
		got, err := BaseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

// go test -v --run TestHealth
func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","db_connection":"Unavailable"}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, time.Second)

	// Context with timeout for safety
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "Unavailable", h.DBConnection)
	assert.False(t, h.OK())
}

// go test -v --run TestHealthServerError
func TestHealthServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewRESTClient(server.URL, time.Second).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
