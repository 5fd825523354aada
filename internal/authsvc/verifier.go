// Package authsvc resolves bearer credentials to verified user
// identifiers via an external collaborator. The core never mints or
// stores credentials itself.
package authsvc

import (
	"context"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

// Verifier turns an opaque bearer token into a user identifier.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ErrUnauthorized is returned for missing, malformed or expired tokens.
var ErrUnauthorized = arenadto.Errorf(arenadto.CodeUnauthorized, "invalid or expired credential")

// StaticVerifier resolves tokens from a fixed table. Test and dev use.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if uid, ok := v[token]; ok && uid != "" {
		return uid, nil
	}
	return "", ErrUnauthorized
}
