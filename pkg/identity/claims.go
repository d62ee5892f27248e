// Package identity normalizes validated identity-provider claims into a
// Principal and caches the provider's signing keys.
//
// Token signature validation itself happens upstream; this package is only
// concerned with the shape of the claims. Identity-provider attribute mappers
// can emit the same claim as a plain string or a single-element list
// depending on mapper type and sync mode, so every attribute claim is
// normalized through the same helper.
package identity

import (
	"strings"

	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// appRoles are the recognized application roles. Provider-internal roles
// (default realm roles, offline_access and the like) are filtered out.
var appRoles = map[string]bool{
	"viewer":  true,
	"analyst": true,
	"manager": true,
	"admin":   true,
	"auditor": true,
}

// Normalize builds a Principal from a validated token payload.
//
// Missing attributes degrade safely: no clearance claim means UNCLASSIFIED,
// missing sets are empty. Normalize never fails; a token with garbage
// attributes yields a principal that can access nothing sensitive.
func Normalize(payload map[string]any) *security.Principal {
	clearance := stringClaim(payload, "clearance_level", string(classification.Unclassified))

	return &security.Principal{
		ID:              stringClaim(payload, "sub", ""),
		Username:        stringClaim(payload, "preferred_username", "unknown"),
		Organization:    stringClaim(payload, "organization", "Unknown"),
		Clearance:       classification.Level(clearance),
		Compartments:    listClaim(payload, "compartments"),
		CellMemberships: listClaim(payload, "cell_memberships"),
		Roles:           extractRoles(payload),
	}
}

// stringClaim extracts a string claim, accepting either a plain string or a
// single-element list of strings.
func stringClaim(payload map[string]any, claim, def string) string {
	value, ok := payload[claim]
	if !ok {
		return def
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return def
		}
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s
			}
		}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return def
}

// listClaim extracts a set-valued claim. The provider emits these as a
// comma-separated string (possibly wrapped in a single-element list).
func listClaim(payload map[string]any, claim string) []string {
	raw := stringClaim(payload, claim, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// extractRoles pulls application roles from realm_access.roles, filtering to
// the recognized role set.
func extractRoles(payload map[string]any) []string {
	realmAccess, ok := payload["realm_access"].(map[string]any)
	if !ok {
		return nil
	}

	var raw []string
	switch roles := realmAccess["roles"].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = roles
	}

	var out []string
	for _, r := range raw {
		if appRoles[r] {
			out = append(out, r)
		}
	}
	return out
}
