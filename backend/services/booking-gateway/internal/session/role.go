package session

import "strings"

// Role is the closed set of caller roles.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleOperator Role = "operator"
	RoleUnknown  Role = "unknown"
)

var roleAliases = map[string]Role{
	"owner":           RoleOwner,
	"evowner":         RoleOwner,
	"operator":        RoleOperator,
	"stationoperator": RoleOperator,
}

// NormalizeRole maps the backend's free-text role onto Role.
// Case, spaces, underscores and hyphens are ignored; anything else is RoleUnknown.
func NormalizeRole(raw string) Role {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))

	if role, ok := roleAliases[compact]; ok {
		return role
	}
	return RoleUnknown
}

// Known reports whether r is Owner or Operator.
func (r Role) Known() bool {
	return r == RoleOwner || r == RoleOperator
}
