package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPVerifier asks an auth service to validate tokens. Transient upstream
// failures are retried with exponential backoff; a definitive rejection
// maps to ErrUnauthorized without retry.
type HTTPVerifier struct {
	baseURL string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type HTTPOption func(*HTTPVerifier)

func WithTimeout(d time.Duration) HTTPOption {
	return func(v *HTTPVerifier) { v.timeout = d }
}

func WithRetry(max int) HTTPOption {
	return func(v *HTTPVerifier) { v.retryMax = max }
}

func NewHTTPVerifier(baseURL string, opts ...HTTPOption) *HTTPVerifier {
	v := &HTTPVerifier{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		timeout:  5 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID string `json:"user_id"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrUnauthorized
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(v.baseURL + "/verify")
	req.Header.SetContentType("application/json")
	payload, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := v.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := v.http.DoDeadline(req, resp, v.deadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("auth request failed: %w", err)
			if attempt == attempts {
				return "", lastErr
			}
			if serr := sleepWithContext(ctx, backoffDuration(attempt)); serr != nil {
				return "", lastErr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
			return "", ErrUnauthorized
		case status < 200 || status >= 300:
			lastErr = fmt.Errorf("auth service error: status=%d", status)
			if attempt == attempts || !shouldRetryStatus(status) {
				return "", lastErr
			}
			if serr := sleepWithContext(ctx, backoffDuration(attempt)); serr != nil {
				return "", lastErr
			}
			continue
		}

		var out verifyResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", fmt.Errorf("decode auth response: %w", err)
		}
		if strings.TrimSpace(out.UserID) == "" {
			return "", ErrUnauthorized
		}
		return out.UserID, nil
	}
	return "", lastErr
}

func (v *HTTPVerifier) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(v.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
