package authsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

func authStub(t *testing.T, users map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/verify" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		uid, ok := users[req.Token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": uid})
	}))
}

func TestHTTPVerifier(t *testing.T) {
	srv := authStub(t, map[string]string{"tok-abc": "u1"})
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, WithTimeout(2*time.Second))
	ctx := context.Background()

	uid, err := v.Verify(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("uid = %q, want u1", uid)
	}

	if _, err := v.Verify(ctx, "tok-bad"); arenadto.CodeOf(err) != arenadto.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if _, err := v.Verify(ctx, ""); arenadto.CodeOf(err) != arenadto.CodeUnauthorized {
		t.Fatalf("empty token: expected UNAUTHORIZED, got %v", err)
	}
}

func TestHTTPVerifierRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "u1"})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, WithRetry(2), WithTimeout(2*time.Second))
	uid, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("uid = %q, want u1", uid)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestHTTPVerifierDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, WithRetry(3), WithTimeout(2*time.Second))
	if _, err := v.Verify(context.Background(), "tok"); arenadto.CodeOf(err) != arenadto.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("a definitive rejection must not be retried, got %d attempts", got)
	}
}

func TestHTTPVerifierRejectsEmptyUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "  "})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, WithTimeout(2*time.Second))
	if _, err := v.Verify(context.Background(), "tok"); arenadto.CodeOf(err) != arenadto.CodeUnauthorized {
		t.Fatalf("blank user id must map to UNAUTHORIZED, got %v", err)
	}
}
