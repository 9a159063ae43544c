// Package memory is an in-process work-item backend built on lock-free maps.
// It backs local development and concurrency tests, and can declare either
// conditional write capability so both claim strategies run against it.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/store"
)

// Backend keeps work items in an xsync.Map keyed by identity. Every
// conditional operation runs inside Map.Compute, which serialises writers of
// the same key without a global lock.
type Backend struct {
	items      *xsync.Map[domain.ItemRef, domain.WorkItem]
	seq        atomic.Uint64
	capability domain.BackendCapability
}

// Option configures a Backend.
type Option func(*Backend)

// WithCapability selects the capability the backend declares.
// The default is atomic_predicate.
func WithCapability(c domain.BackendCapability) Option {
	return func(b *Backend) { b.capability = c }
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		items:      xsync.NewMap[domain.ItemRef, domain.WorkItem](),
		capability: domain.CapabilityAtomicPredicate,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ store.Backend       = (*Backend)(nil)
	_ store.AtomicClaimer = (*Backend)(nil)
)

func (b *Backend) Capability() domain.BackendCapability { return b.capability }

func (b *Backend) nextVersion() domain.Version {
	return domain.Version(strconv.FormatUint(b.seq.Add(1), 10))
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (b *Backend) Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkItem{}, err
	}
	item, ok := b.items.Load(ref)
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("work_item %s: %w", ref, domain.ErrNotFound)
	}
	return item.Clone(), nil
}

func (b *Backend) ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.WorkItem, 0, len(refs))
	for _, ref := range refs {
		if item, ok := b.items.Load(ref); ok {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (b *Backend) Query(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ItemPage{}, err
	}
	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return domain.ItemPage{}, err
	}

	var matched []domain.WorkItem
	b.items.Range(func(ref domain.ItemRef, item domain.WorkItem) bool {
		if !store.MatchFilter(item, filter) {
			return true
		}
		if !filter.Randomize && cursor != "" && !store.After(ref, after) {
			return true
		}
		matched = append(matched, item.Clone())
		return true
	})

	if filter.Randomize {
		rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
		if len(matched) > limit {
			matched = matched[:limit]
		}
		return domain.ItemPage{Items: matched}, nil
	}

	slices.SortFunc(matched, compareRef)
	page := domain.ItemPage{Items: matched}
	if len(matched) > limit {
		page.Items = matched[:limit]
		page.NextCursor = store.EncodeCursor(page.Items[limit-1].Ref())
	}
	if page.Items == nil {
		page.Items = []domain.WorkItem{}
	}
	return page, nil
}

func (b *Backend) GroupStats(ctx context.Context) ([]domain.GroupStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	b.items.Range(func(_ domain.ItemRef, item domain.WorkItem) bool {
		if store.Available(item) {
			counts[item.GroupKey]++
		}
		return true
	})

	stats := make([]domain.GroupStat, 0, len(counts))
	for g, n := range counts {
		stats = append(stats, domain.GroupStat{GroupKey: g, Available: n})
	}
	slices.SortFunc(stats, func(a, b domain.GroupStat) int { return cmp.Compare(a.GroupKey, b.GroupKey) })
	return stats, nil
}

// ---------------------------------------------------------------------------
// Conditional writes
// ---------------------------------------------------------------------------

func (b *Backend) ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkItem{}, err
	}
	ref := item.Ref()

	var (
		current domain.Version
		found   bool
		matched bool
	)
	saved, _ := b.items.Compute(ref, func(old domain.WorkItem, loaded bool) (domain.WorkItem, xsync.ComputeOp) {
		found = loaded
		if !loaded {
			return old, xsync.CancelOp
		}
		current = old.Version
		if old.Version != expected {
			return old, xsync.CancelOp
		}
		matched = true
		next := item.Clone()
		next.Version = b.nextVersion()
		next.CreatedAt = old.CreatedAt
		return next, xsync.UpdateOp
	})

	switch {
	case !found:
		return domain.WorkItem{}, fmt.Errorf("work_item %s: %w", ref, domain.ErrNotFound)
	case !matched:
		return domain.WorkItem{}, &domain.PreconditionError{Item: ref, Expected: expected, Current: current}
	}
	return saved.Clone(), nil
}

// ConditionalClaim evaluates the claim predicate and applies the claim in one
// Compute call.
func (b *Backend) ConditionalClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (domain.WorkItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkItem{}, false, err
	}

	var found, claimed bool
	saved, _ := b.items.Compute(ref, func(old domain.WorkItem, loaded bool) (domain.WorkItem, xsync.ComputeOp) {
		found = loaded
		if !loaded || !old.Claimable(callerID) {
			return old, xsync.CancelOp
		}
		claimed = true
		next := old.Clone()
		next.ApplyClaim(callerID, now)
		next.Version = b.nextVersion()
		return next, xsync.UpdateOp
	})

	if !found {
		return domain.WorkItem{}, false, fmt.Errorf("work_item %s: %w", ref, domain.ErrNotFound)
	}
	if !claimed {
		return domain.WorkItem{}, false, nil
	}
	return saved.Clone(), true, nil
}

func (b *Backend) Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkItem{}, err
	}
	ref := item.Ref()

	var exists bool
	saved, _ := b.items.Compute(ref, func(old domain.WorkItem, loaded bool) (domain.WorkItem, xsync.ComputeOp) {
		if loaded {
			exists = true
			return old, xsync.CancelOp
		}
		next := item.Clone()
		next.Version = b.nextVersion()
		return next, xsync.UpdateOp
	})
	if exists {
		return domain.WorkItem{}, &domain.ConflictError{Item: ref}
	}
	return saved.Clone(), nil
}

func compareRef(a, b domain.WorkItem) int {
	if c := cmp.Compare(a.GroupKey, b.GroupKey); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
