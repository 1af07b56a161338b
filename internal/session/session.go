// Package session defines the caller identity consulted by the alert engine.
package session

import "strings"

// Role identifies what a caller may see and do.
type Role string

const (
	// RoleOperator verifies and rejects detections and sees every alert.
	RoleOperator Role = "operator"
	// RoleRecipient is the general audience and only sees verified alerts.
	RoleRecipient Role = "recipient"
	// RoleNone is reported for callers without a role.
	RoleNone Role = ""
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleOperator || r == RoleRecipient
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// ParseRole maps user input to a Role. The legacy names "admin" and "user"
// are accepted as aliases.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "operator", "admin":
		return RoleOperator, true
	case "recipient", "user":
		return RoleRecipient, true
	default:
		return RoleNone, false
	}
}

// Provider answers who is calling. The engine only reads it.
type Provider interface {
	CurrentRole() Role
	IsAuthenticated() bool
}

// Static is a Provider with a fixed identity.
type Static struct {
	role          Role
	authenticated bool
}

// NewStatic returns an authenticated provider for role.
func NewStatic(role Role) Static {
	return Static{role: role, authenticated: role.Valid()}
}

// Anonymous returns an unauthenticated provider.
func Anonymous() Static {
	return Static{}
}

func (s Static) CurrentRole() Role     { return s.role }
func (s Static) IsAuthenticated() bool { return s.authenticated }
