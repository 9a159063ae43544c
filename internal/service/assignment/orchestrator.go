package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// Orchestrator drives self-assignment and single-item assignment. It owns
// the index reference; the index knows nothing about the orchestrator.
type Orchestrator struct {
	store    itemStore
	engine   claimer
	sampler  candidateSampler
	index    assignmentIndex
	policy   domain.Policy
	maxBatch int
	now      func() time.Time
	log      *slog.Logger
}

// NewOrchestrator creates an orchestrator. maxBatch caps the limit of a
// single SelfAssign call.
func NewOrchestrator(
	log *slog.Logger,
	store itemStore,
	engine claimer,
	sampler candidateSampler,
	index assignmentIndex,
	policy domain.Policy,
	maxBatch int,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		engine:   engine,
		sampler:  sampler,
		index:    index,
		policy:   policy,
		maxBatch: max(maxBatch, 1),
		now:      time.Now,
		log:      log.With("service", "assignment"),
	}
}

// SelfAssign claims up to limit available items for userID. Candidates are
// over-fetched and claimed one by one; lost claims are skipped. When the
// first pass comes up short, one more sampling pass runs per configured
// retry pass, excluding every candidate already seen. A short result is a
// valid outcome.
//
// Cancelling ctx stops claiming; items claimed so far stay claimed and are
// returned with a nil error.
func (o *Orchestrator) SelfAssign(ctx context.Context, userID string, limit int) (domain.SelfAssignResult, error) {
	if userID == "" {
		return domain.SelfAssignResult{}, domain.ErrUnauthorized
	}
	if limit < 1 || limit > o.maxBatch {
		return domain.SelfAssignResult{}, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", o.maxBatch))
	}

	res := domain.SelfAssignResult{Requested: limit, Assigned: []domain.WorkItem{}}
	seen := make(map[domain.ItemRef]struct{})

	for pass := 0; pass <= o.policy.RetryPasses(); pass++ {
		need := limit - len(res.Assigned)
		if need <= 0 || ctx.Err() != nil {
			break
		}

		candidates, err := o.sampler.SampleCandidates(ctx, userID, need, seen)
		if err != nil {
			if pass == 0 {
				return domain.SelfAssignResult{}, fmt.Errorf("sample candidates: %w", err)
			}
			o.log.WarnContext(ctx, "retry sampling failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			break
		}
		if len(candidates) == 0 {
			break
		}

		stop, err := o.claimAll(ctx, userID, candidates, limit, seen, &res)
		if err != nil {
			return domain.SelfAssignResult{}, err
		}
		if stop {
			break
		}
	}

	res.AssignedCount = len(res.Assigned)
	if res.AssignedCount < limit {
		selfAssignShortTotal.Inc()
	}

	o.log.InfoContext(ctx, "self-assign finished",
		slog.String("user_id", userID),
		slog.Int("requested", limit),
		slog.Int("assigned", res.AssignedCount),
	)
	return res, nil
}

// claimAll claims candidates until res holds limit items. stop reports that
// the batch must end early. An error is returned only when the store is
// unavailable before anything was claimed.
func (o *Orchestrator) claimAll(
	ctx context.Context,
	userID string,
	candidates []domain.ItemRef,
	limit int,
	seen map[domain.ItemRef]struct{},
	res *domain.SelfAssignResult,
) (stop bool, err error) {
	for _, ref := range candidates {
		if len(res.Assigned) >= limit {
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		seen[ref] = struct{}{}

		cr, err := o.engine.Claim(ctx, ref, userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			continue
		case errors.Is(err, domain.ErrStoreUnavailable):
			if len(res.Assigned) == 0 {
				return true, err
			}
			o.log.WarnContext(ctx, "store unavailable, returning partial batch",
				slog.String("user_id", userID),
				slog.Int("assigned", len(res.Assigned)),
			)
			return true, nil
		case err != nil:
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		case !cr.Success:
			continue
		}

		o.upsertIndex(ctx, userID, *cr.Item)
		res.Assigned = append(res.Assigned, *cr.Item)
	}
	return false, nil
}

// AssignSingle claims ref for userID. An item held by someone else is a
// conflict unless force is set, in which case it is taken over with a
// version-conditioned replace and the previous holder's index entry is
// removed. Whether the caller may force is decided by the request layer.
func (o *Orchestrator) AssignSingle(ctx context.Context, userID string, ref domain.ItemRef, force bool) (domain.WorkItem, error) {
	if userID == "" {
		return domain.WorkItem{}, domain.ErrUnauthorized
	}
	if err := ref.Validate(); err != nil {
		return domain.WorkItem{}, err
	}

	cr, err := o.engine.Claim(ctx, ref, userID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if cr.Success {
		o.upsertIndex(ctx, userID, *cr.Item)
		return *cr.Item, nil
	}

	current, err := o.store.Read(ctx, ref)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("read %s: %w", ref, err)
	}
	if !current.HeldByOther(userID) {
		// The holder let go between the claim and the read.
		cr, err := o.engine.Claim(ctx, ref, userID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		if cr.Success {
			o.upsertIndex(ctx, userID, *cr.Item)
			return *cr.Item, nil
		}
		if current, err = o.store.Read(ctx, ref); err != nil {
			return domain.WorkItem{}, fmt.Errorf("read %s: %w", ref, err)
		}
	}

	if !force {
		return domain.WorkItem{}, &domain.ConflictError{Item: ref, Holder: current.Holder()}
	}
	return o.takeOver(ctx, userID, current)
}

func (o *Orchestrator) takeOver(ctx context.Context, userID string, current domain.WorkItem) (domain.WorkItem, error) {
	ref := current.Ref()
	previous := current.Holder()

	next := current.Clone()
	next.ApplyClaim(userID, o.now())
	next.UpdatedBy = &userID

	saved, err := o.store.ConditionalReplace(ctx, next, current.Version)
	if errors.Is(err, domain.ErrPreconditionFailed) {
		// Someone else changed the item first; report who holds it now.
		fresh, rerr := o.store.Read(ctx, ref)
		if rerr != nil {
			return domain.WorkItem{}, fmt.Errorf("take over %s: %w", ref, err)
		}
		return domain.WorkItem{}, &domain.ConflictError{Item: ref, Holder: fresh.Holder()}
	}
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("take over %s: %w", ref, err)
	}
	takeoversTotal.Inc()

	if previous != "" && previous != userID {
		o.index.DeleteBestEffort(ctx, previous, ref)
	}
	o.upsertIndex(ctx, userID, saved)

	o.log.InfoContext(ctx, "item taken over",
		slog.String("item", ref.String()),
		slog.String("from", previous),
		slog.String("to", userID),
	)
	return saved, nil
}

// Release gives an item back to the pool. Only the holder may release unless
// privileged is set. Releasing an unassigned item is a no-op.
func (o *Orchestrator) Release(ctx context.Context, userID string, ref domain.ItemRef, privileged bool) (domain.WorkItem, error) {
	if userID == "" {
		return domain.WorkItem{}, domain.ErrUnauthorized
	}
	if err := ref.Validate(); err != nil {
		return domain.WorkItem{}, err
	}

	current, err := o.store.Read(ctx, ref)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("read %s: %w", ref, err)
	}
	holder := current.Holder()
	if holder == "" {
		return current, nil
	}
	if holder != userID && !privileged {
		return domain.WorkItem{}, fmt.Errorf("release %s held by %s: %w", ref, holder, domain.ErrOwnershipViolation)
	}

	next := current.Clone()
	next.ClearAssignment()
	next.UpdatedAt = o.now().UTC()
	next.UpdatedBy = &userID

	saved, err := o.store.ConditionalReplace(ctx, next, current.Version)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("release %s: %w", ref, err)
	}
	o.index.DeleteBestEffort(ctx, holder, ref)

	o.log.InfoContext(ctx, "item released",
		slog.String("item", ref.String()),
		slog.String("holder", holder),
		slog.String("by", userID),
	)
	return saved, nil
}

// upsertIndex records the assignment. Failures are logged and swallowed; the
// index is repaired lazily when the user's list is read.
func (o *Orchestrator) upsertIndex(ctx context.Context, userID string, item domain.WorkItem) {
	if err := o.index.Upsert(ctx, userID, item); err != nil {
		o.log.WarnContext(ctx, "assignment index upsert failed",
			slog.String("user_id", userID),
			slog.String("item", item.Ref().String()),
			slog.String("error", err.Error()),
		)
	}
}
