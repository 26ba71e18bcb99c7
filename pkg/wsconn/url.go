package wsconn

import (
	"fmt"
	"net"
	"net/url"

	"go.uber.org/zap"
)

const (
	// DefaultPort and DefaultPath locate the live analytics stream on the page host.
	DefaultPort = "8000"
	DefaultPath = "/ws/live-analytics"
	// DefaultURL is used when no override is given and the page origin is unusable.
	DefaultURL = "ws://localhost:8000/ws/live-analytics"
)

// ResolveURL picks the stream endpoint. A non-empty override is returned verbatim.
// Otherwise the endpoint is derived from pageOrigin (e.g. "https://dash.example.com"),
// using wss iff the page is served over https. Any failure falls back to DefaultURL.
func ResolveURL(override, pageOrigin string, logger *zap.Logger) string {
	if override != "" {
		return override
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageOrigin == "" {
		logger.Debug("no page origin configured, using default stream url", zap.String("url", DefaultURL))
		return DefaultURL
	}

	u, err := fromOrigin(pageOrigin)
	if err != nil {
		logger.Warn("failed to derive stream url from page origin",
			zap.String("origin", pageOrigin), zap.String("fallback", DefaultURL), zap.Error(err))
		return DefaultURL
	}
	return u
}

func fromOrigin(origin string) (string, error) {
	page, err := url.Parse(origin)
	if err != nil {
		return "", err
	}

	var scheme string
	switch page.Scheme {
	case "https":
		scheme = "wss"
	case "http":
		scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported page scheme %q", page.Scheme)
	}

	host := page.Hostname()
	if host == "" {
		return "", fmt.Errorf("page origin has no host")
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, DefaultPort),
		Path:   DefaultPath,
	}
	return u.String(), nil
}
