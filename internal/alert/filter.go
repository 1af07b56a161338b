package alert

import (
	"cmp"
	"slices"

	"github.com/tphakala/wildalert/internal/session"
)

// CameraFeedLimit is how many alerts the per-camera feed shows.
const CameraFeedLimit = 10

// VisibleTo returns the visibility predicate for role. Operators see every
// alert, recipients only verified ones, anyone else nothing.
func VisibleTo(role session.Role) func(*Alert) bool {
	switch role {
	case session.RoleOperator:
		return func(*Alert) bool { return true }
	case session.RoleRecipient:
		return func(a *Alert) bool { return a.State == StateVerified }
	default:
		return func(*Alert) bool { return false }
	}
}

// Visible projects snapshot for role, newest DetectedAt first with ties broken
// by higher ID first. The input slice is not modified.
func Visible(role session.Role, snapshot []Alert) []Alert {
	visible := VisibleTo(role)
	out := make([]Alert, 0, len(snapshot))
	for i := range snapshot {
		if visible(&snapshot[i]) {
			out = append(out, snapshot[i])
		}
	}
	sortNewestFirst(out)
	return out
}

// Partition splits an operator view into the full list and the alerts still
// needing verification. Both slices are newest first.
func Partition(snapshot []Alert) (all, needsVerification []Alert) {
	all = Visible(session.RoleOperator, snapshot)
	for i := range all {
		if all[i].IsPending() {
			needsVerification = append(needsVerification, all[i])
		}
	}
	return all, needsVerification
}

// QueryOptions narrows a visible list.
type QueryOptions struct {
	// Camera keeps alerts from one source camera
	Camera string
	// States keeps alerts in any of these states
	States []State
	// Limit caps the result size, 0 means no cap
	Limit int
	// Offset skips this many results
	Offset int
}

// Query is Visible followed by opts. A nil opts behaves like Visible.
func Query(role session.Role, snapshot []Alert, opts *QueryOptions) []Alert {
	out := Visible(role, snapshot)
	if opts == nil {
		return out
	}

	out = slices.DeleteFunc(out, func(a Alert) bool {
		if opts.Camera != "" && a.SourceCameraID != opts.Camera {
			return true
		}
		if len(opts.States) > 0 && !slices.Contains(opts.States, a.State) {
			return true
		}
		return false
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Alert{}
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func sortNewestFirst(alerts []Alert) {
	slices.SortFunc(alerts, func(a, b Alert) int {
		if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
