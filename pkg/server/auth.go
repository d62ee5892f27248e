package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"stratum-hq/bastion/pkg/identity"
	"stratum-hq/bastion/pkg/security"
)

// PrincipalResolver turns a request into the authenticated principal.
// Token validation itself happens upstream (gateway or sidecar); the resolver
// only consumes the already-verified identity assertion.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*security.Principal, error)
}

// ClaimsHeader is the header the authenticating gateway places the verified,
// base64-encoded JSON claims payload in.
const ClaimsHeader = "X-Identity-Claims"

// KeyIDHeader is the header naming the provider key the gateway verified the
// token against. Only consulted by KeyVerifiedResolver.
const KeyIDHeader = "X-Identity-Key-ID"

// HeaderResolver resolves the principal from the gateway-verified claims
// header. A request without the header is anonymous: an empty principal with
// no clearance, which every classified check denies.
type HeaderResolver struct{}

// Resolve implements PrincipalResolver.
func (HeaderResolver) Resolve(r *http.Request) (*security.Principal, error) {
	raw := r.Header.Get(ClaimsHeader)
	if raw == "" {
		return &security.Principal{}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed claims header: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("malformed claims payload: %w", err)
	}

	return identity.Normalize(payload), nil
}

// KeyVerifiedResolver resolves claims like HeaderResolver but additionally
// requires the gateway to name the signing key it verified the token against,
// and checks that key is currently published by the identity provider. A
// revoked or rotated-out key invalidates assertions immediately instead of
// at the gateway's own refresh interval.
//
// Requests without the claims header stay anonymous; the key check only
// applies to authenticated assertions. Provider outages surface as
// identity.UnavailableError, which the middleware answers with 503 — never
// 403, the assertion was not evaluated.
type KeyVerifiedResolver struct {
	keys *identity.KeyCache
}

// NewKeyVerifiedResolver creates a resolver backed by the given key cache.
func NewKeyVerifiedResolver(keys *identity.KeyCache) *KeyVerifiedResolver {
	return &KeyVerifiedResolver{keys: keys}
}

// Resolve implements PrincipalResolver.
func (kr *KeyVerifiedResolver) Resolve(r *http.Request) (*security.Principal, error) {
	if r.Header.Get(ClaimsHeader) == "" {
		return &security.Principal{}, nil
	}

	kid := r.Header.Get(KeyIDHeader)
	if kid == "" {
		return nil, fmt.Errorf("missing %s header", KeyIDHeader)
	}
	if _, err := kr.keys.Key(r.Context(), kid); err != nil {
		return nil, fmt.Errorf("signing key check failed: %w", err)
	}

	return HeaderResolver{}.Resolve(r)
}

// authMiddleware resolves the principal once per request and stores it in the
// context. Resolver faults answer 401 for malformed assertions and 503 when
// the identity provider is unreachable.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.resolver.Resolve(r)
		if err != nil {
			var unavailable *identity.UnavailableError
			if errors.As(err, &unavailable) {
				writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid identity assertion")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFrom returns the request principal, anonymous if absent.
func principalFrom(ctx context.Context) *security.Principal {
	if p, ok := ctx.Value(principalKey).(*security.Principal); ok {
		return p
	}
	return &security.Principal{}
}
