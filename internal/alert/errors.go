package alert

import "github.com/tphakala/wildalert/internal/errors"

// Sentinel errors. Enhanced errors match these through errors.Is by category,
// so a failure carrying alert id and state context still satisfies
// errors.Is(err, alert.ErrNotFound).
var (
	ErrNotFound          = sentinel("alert not found", errors.CategoryNotFound)
	ErrPermissionDenied  = sentinel("permission denied", errors.CategoryPermission)
	ErrInvalidTransition = sentinel("invalid state transition", errors.CategoryInvalidTransition)
	ErrValidation        = sentinel("validation failed", errors.CategoryValidation)
)

func sentinel(msg string, category errors.ErrorCategory) error {
	return errors.Newf("%s", msg).
		Component("alert").
		Category(category).
		Build()
}

func notFound(id uint64) error {
	return errors.Newf("alert %d not found", id).
		Component("alert").
		Category(errors.CategoryNotFound).
		Context("alert_id", id).
		Build()
}

func invalidTransition(id uint64, from, to State) error {
	return errors.Newf("alert %d cannot move from %s to %s", id, from, to).
		Component("alert").
		Category(errors.CategoryInvalidTransition).
		Context("alert_id", id).
		Context("from_state", string(from)).
		Context("to_state", string(to)).
		Build()
}

func emptyMessage(id uint64) error {
	return errors.Newf("alert %d: operator message is required to verify", id).
		Component("alert").
		Category(errors.CategoryValidation).
		Context("alert_id", id).
		Build()
}
