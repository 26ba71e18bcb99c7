package wsconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// go test -v --run TestResolveURL
func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		override string
		origin   string
		want     string
	}{
		{"override wins", "ws://analytics:9000/custom", "https://dash.example.com", "ws://analytics:9000/custom"},
		{"secure page", "", "https://dash.example.com", "wss://dash.example.com:8000/ws/live-analytics"},
		{"insecure page keeps host, drops port", "", "http://10.0.0.5:3000", "ws://10.0.0.5:8000/ws/live-analytics"},
		{"ipv6 host", "", "http://[::1]:3000", "ws://[::1]:8000/ws/live-analytics"},
		{"no origin", "", "", DefaultURL},
		{"unknown scheme", "", "file:///tmp/index.html", DefaultURL},
		{"unparseable", "", "://nope", DefaultURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.override, tt.origin, nil))
		})
	}
}
