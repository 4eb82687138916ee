package retrieval

import (
	"strings"
)

// openScopes are visible to any authenticated requester. The empty scope is
// treated the same way.
var openScopes = map[string]struct{}{
	"":         {},
	"all":      {},
	"public":   {},
	"公開":       {},
	"全員":       {},
	"internal": {},
	"社内":       {},
	"personal": {},
	"個人":       {},
}

// Visible reports whether a company-knowledge record may be shown to a
// requester identified by their alias set. A named-individual scope admits
// the requester when the scope and any alias contain each other in either
// direction; the asymmetry tolerates partial-name scoping data, at the cost
// of over-admitting very short aliases (kept as-is pending a policy decision,
// see DESIGN.md).
func Visible(scope string, requesterAliases map[string]struct{}) bool {
	normalized := strings.ToLower(strings.TrimSpace(scope))
	if _, open := openScopes[normalized]; open {
		return true
	}
	for alias := range requesterAliases {
		if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
			return true
		}
	}
	return false
}
