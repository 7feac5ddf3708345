package apiclient

import (
	"net/http"
	"time"
)

type debugLogger interface {
	Debug(msg string, args ...any)
}

// loggingTransport logs every round trip made by the client
type loggingTransport struct {
	next   http.RoundTripper
	logger debugLogger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug(
			"HTTP request failed",
			"method", req.Method,
			"uri", req.URL.RequestURI(),
			"duration", time.Since(start),
			"error", err,
		)
		return resp, err
	}

	t.logger.Debug(
		"got HTTP response",
		"method", req.Method,
		"uri", req.URL.RequestURI(),
		"duration", time.Since(start),
		"status", resp.StatusCode,
		"size", resp.ContentLength,
	)

	return resp, nil
}
