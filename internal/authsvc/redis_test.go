package authsvc

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

func TestRedisVerifier(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("auth:token:tok-abc", "u1")
	mr.Set("auth:token:tok-blank", "  ")

	v, err := NewRedisVerifier("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisVerifier: %v", err)
	}
	defer v.Close()

	ctx := context.Background()
	uid, err := v.Verify(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("uid = %q, want u1", uid)
	}

	for _, token := range []string{"tok-missing", "tok-blank", "", "   "} {
		if _, err := v.Verify(ctx, token); arenadto.CodeOf(err) != arenadto.CodeUnauthorized {
			t.Errorf("token %q: expected UNAUTHORIZED, got %v", token, err)
		}
	}
}

func TestRedisVerifierTokenTrimming(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("auth:token:tok-abc", "u1")

	v, err := NewRedisVerifier("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisVerifier: %v", err)
	}
	defer v.Close()

	uid, err := v.Verify(context.Background(), "  tok-abc  ")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("uid = %q, want u1", uid)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6379/2")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost:6379"); err == nil {
		t.Fatal("non-redis scheme must be rejected")
	}
}
