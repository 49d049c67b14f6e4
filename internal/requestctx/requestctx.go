// Package requestctx carries a per-request snapshot of the caller's network
// identity through context. The HTTP layer captures it once per request; the
// flows and session packages read it for rate limiting, device binding, and
// audit logging.
package requestctx

import "context"

type snapshotKey struct{}

// Snapshot is the client identity observed for one request.
type Snapshot struct {
	IP        string
	UserAgent string
}

// With attaches the snapshot to ctx.
func With(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// From returns the snapshot attached to ctx, or a zero snapshot when none
// was attached. Missing fields are treated as "unknown" by consumers rather
// than rejected here.
func From(ctx context.Context) Snapshot {
	if ctx == nil {
		return Snapshot{}
	}
	snap, _ := ctx.Value(snapshotKey{}).(Snapshot)
	return snap
}
