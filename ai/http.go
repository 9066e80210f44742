package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusError maps a non-2xx provider reply onto the failure taxonomy.
func statusError(status int, body []byte, header http.Header) error {
	switch status {
	case http.StatusTooManyRequests:
		var after time.Duration
		if raw := header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs > 0 {
				after = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: after}
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return &AuthError{Status: status, Message: truncate(string(body), 200)}
	default:
		return &UpstreamError{Status: status, Body: truncate(string(body), 200)}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// postJSON sends one JSON request and returns the raw reply body. Non-2xx
// statuses come back as taxonomy errors.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body, resp.Header)
	}
	return body, nil
}
