package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// ConditionalWriter claims an item for a caller. It returns ok=false with a
// nil error when the claim predicate fails; errors are reserved for
// infrastructure failures and unknown items.
type ConditionalWriter interface {
	TryClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (item domain.WorkItem, ok bool, err error)
	Capability() domain.BackendCapability
}

// NewConditionalWriter picks the strategy for backend once. A backend that
// declares atomic_predicate must implement AtomicClaimer.
func NewConditionalWriter(backend Backend) (ConditionalWriter, error) {
	switch c := backend.Capability(); c {
	case domain.CapabilityAtomicPredicate:
		claimer, ok := backend.(AtomicClaimer)
		if !ok {
			return nil, fmt.Errorf("backend declares %s but does not implement AtomicClaimer", c)
		}
		return &AtomicPredicateWriter{claimer: claimer}, nil
	case domain.CapabilityReadValidateWrite:
		return &ReadValidateWriteWriter{backend: backend}, nil
	default:
		return nil, fmt.Errorf("unknown backend capability %q", c)
	}
}

// ---------------------------------------------------------------------------
// Atomic predicate
// ---------------------------------------------------------------------------

// AtomicPredicateWriter delegates the whole claim to one server-side
// conditional update. No read precedes it.
type AtomicPredicateWriter struct {
	claimer AtomicClaimer
}

func (w *AtomicPredicateWriter) Capability() domain.BackendCapability {
	return domain.CapabilityAtomicPredicate
}

func (w *AtomicPredicateWriter) TryClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (domain.WorkItem, bool, error) {
	return w.claimer.ConditionalClaim(ctx, ref, callerID, now)
}

// ---------------------------------------------------------------------------
// Read, validate, write
// ---------------------------------------------------------------------------

// ReadValidateWriteWriter reads the item, checks the claim predicate locally
// and writes back conditioned on the version it read. A concurrent writer
// that lands in between makes the replace fail, which counts as a lost claim.
type ReadValidateWriteWriter struct {
	backend Backend
}

func (w *ReadValidateWriteWriter) Capability() domain.BackendCapability {
	return domain.CapabilityReadValidateWrite
}

func (w *ReadValidateWriteWriter) TryClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (domain.WorkItem, bool, error) {
	current, err := w.backend.Read(ctx, ref)
	if err != nil {
		return domain.WorkItem{}, false, err
	}
	if !current.Claimable(callerID) {
		return domain.WorkItem{}, false, nil
	}

	next := current.Clone()
	next.ApplyClaim(callerID, now)

	saved, err := w.backend.ConditionalReplace(ctx, next, current.Version)
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return domain.WorkItem{}, false, nil
	}
	if err != nil {
		return domain.WorkItem{}, false, err
	}
	return saved, true, nil
}
