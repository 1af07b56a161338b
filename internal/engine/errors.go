package engine

import (
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/session"
)

const reasonUnauthenticated = "unauthenticated"

func permissionDenied(op string, role session.Role, reason string) error {
	return errors.Newf("%s: permission denied for role %s: %s", op, role, reason).
		Component("engine").
		Category(errors.CategoryPermission).
		Context("operation", op).
		Context("role", role.String()).
		Context("reason", reason).
		Build()
}

func unauthenticated(op string) error {
	return errors.Newf("%s: permission denied: not authenticated", op).
		Component("engine").
		Category(errors.CategoryPermission).
		Context("operation", op).
		Context("reason", reasonUnauthenticated).
		Build()
}

// IsUnauthenticated reports whether err is a permission failure caused by a
// missing session rather than by the caller's role.
func IsUnauthenticated(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) || ee.Category != errors.CategoryPermission {
		return false
	}
	reason, _ := ee.GetContext()["reason"].(string)
	return reason == reasonUnauthenticated
}
