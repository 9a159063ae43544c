// Package store is the work-item persistence boundary. Backends implement a
// narrow capability interface; Store wraps one backend with the conditional
// write strategy it supports, bounded read retries and call timeouts.
package store

import (
	"context"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// Backend is the capability surface every work-item store offers.
//
// Read and ConditionalReplace return domain.ErrNotFound for unknown items.
// ConditionalReplace persists item only if the stored version equals
// expected, otherwise it returns *domain.PreconditionError carrying the
// stored version. Every successful write assigns a new version.
// Infrastructure failures wrap domain.ErrStoreUnavailable.
type Backend interface {
	Capability() domain.BackendCapability
	Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error)
	// ReadMany returns the items that exist, in request order. Missing refs are skipped.
	ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error)
	ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error)
	// Query returns up to limit items matching filter, resuming after cursor.
	// Cursors are opaque and backend specific. Randomized queries ignore cursor.
	Query(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error)
	// GroupStats counts unassigned drafts per group. Groups with none may be omitted.
	GroupStats(ctx context.Context) ([]domain.GroupStat, error)
	// Create inserts a new item. A duplicate identity is *domain.ConflictError.
	Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error)
}

// AtomicClaimer is implemented by backends that evaluate the claim predicate
// server-side in a single conditional write. ok is false, with a nil error,
// when the item exists but is held by another user.
type AtomicClaimer interface {
	ConditionalClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (item domain.WorkItem, ok bool, err error)
}

// BatchCreator is implemented by backends that can insert many items in one
// all-or-nothing unit.
type BatchCreator interface {
	CreateMany(ctx context.Context, items []domain.WorkItem) error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
