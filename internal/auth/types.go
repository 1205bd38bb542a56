package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleOperator controls playback and reads history.
	RoleOperator Role = "operator"

	// RoleDisplay is the kiosk page. It may subscribe to live channels and
	// report that interactive content has finished.
	RoleDisplay Role = "display"

	// RoleViewer can watch live events and read history but not steer.
	RoleViewer Role = "viewer"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleOperator, RoleDisplay, RoleViewer}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Errors returned by token operations.
var (
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrInvalidRole    = errors.New("auth: invalid role")
	ErrSecretTooShort = errors.New("auth: secret too short")
	ErrForbidden      = errors.New("auth: insufficient permissions")
)
