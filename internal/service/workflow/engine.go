// Package workflow applies partial updates to work items under optimistic
// concurrency control.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

var updatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "curation_updates_total",
		Help: "Update attempts by result.",
	},
	[]string{"result"},
)

type itemStore interface {
	Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error)
	ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error)
}

type assignmentIndex interface {
	DeleteBestEffort(ctx context.Context, userID string, ref domain.ItemRef)
}

// Engine runs the update workflow.
type Engine struct {
	store  itemStore
	index  assignmentIndex
	policy domain.Policy
	now    func() time.Time
	log    *slog.Logger
}

// NewEngine creates an update engine.
func NewEngine(log *slog.Logger, store itemStore, index assignmentIndex, policy domain.Policy) *Engine {
	return &Engine{
		store:  store,
		index:  index,
		policy: policy,
		now:    time.Now,
		log:    log.With("service", "workflow"),
	}
}

// Update applies req.Patch to the item in one conditional write:
//
//  1. read the current item and version;
//  2. check the expected version (required in strict mode);
//  3. check ownership of assignment-scoped changes;
//  4. apply the patch under the caller's field mask;
//  5. clear the assignment when the status becomes terminal;
//  6. recompute derived fields;
//  7. replace conditioned on the version read in step 1;
//  8. drop the previous holder's index entry if the item left them.
func (e *Engine) Update(ctx context.Context, req domain.UpdateRequest) (domain.WorkItem, error) {
	item, err := e.update(ctx, req)
	updatesTotal.WithLabelValues(resultLabel(err)).Inc()
	return item, err
}

func (e *Engine) update(ctx context.Context, req domain.UpdateRequest) (domain.WorkItem, error) {
	if req.CallerID == "" {
		return domain.WorkItem{}, domain.ErrUnauthorized
	}
	if err := req.Item.Validate(); err != nil {
		return domain.WorkItem{}, err
	}
	if req.Patch.IsEmpty() {
		return domain.WorkItem{}, domain.NewValidationError("patch", "no fields to update")
	}
	if err := req.Patch.Validate(); err != nil {
		return domain.WorkItem{}, err
	}

	current, err := e.store.Read(ctx, req.Item)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("read %s: %w", req.Item, err)
	}

	if req.ExpectedVersion.IsZero() {
		if e.policy.RequireVersion() {
			return domain.WorkItem{}, &domain.PreconditionError{Item: req.Item, Current: current.Version}
		}
	} else if req.ExpectedVersion != current.Version {
		return domain.WorkItem{}, &domain.PreconditionError{Item: req.Item, Expected: req.ExpectedVersion, Current: current.Version}
	}

	target, err := targetStatus(current.Status, req.Patch, req.Options)
	if err != nil {
		return domain.WorkItem{}, err
	}

	if req.Options.EnforceOwnership && assignmentScoped(current, target, req.Patch) && !current.IsAssignedTo(req.CallerID) {
		return domain.WorkItem{}, fmt.Errorf("update %s held by %q: %w", req.Item, current.Holder(), domain.ErrOwnershipViolation)
	}

	if err := checkMask(req.Patch, req.Mask); err != nil {
		return domain.WorkItem{}, err
	}

	next := current.Clone()
	applyContent(&next, req.Patch)
	next.Status = target
	if target.IsTerminal() || (req.Patch.Restore && current.Status != domain.StatusDraft) {
		next.ClearAssignment()
	}
	next.RecomputeDerived()
	next.UpdatedAt = e.now().UTC()
	next.UpdatedBy = &req.CallerID

	saved, err := e.store.ConditionalReplace(ctx, next, current.Version)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("update %s: %w", req.Item, err)
	}

	if holder := current.Holder(); holder != "" && !saved.IsAssignedTo(holder) {
		e.index.DeleteBestEffort(ctx, holder, req.Item)
	}

	e.log.InfoContext(ctx, "item updated",
		slog.String("item", req.Item.String()),
		slog.String("user_id", req.CallerID),
		slog.String("from_status", current.Status.String()),
		slog.String("to_status", saved.Status.String()),
		slog.String("version", saved.Version.String()),
	)
	return saved, nil
}

// targetStatus applies the state machine. Only draft items can be approved
// or skipped, anything can be deleted, and a non-draft item returns to draft
// only through an allowed restore.
func targetStatus(from domain.Status, p domain.FieldPatch, opts domain.UpdateOptions) (domain.Status, error) {
	if p.Restore {
		if !opts.AllowRestore {
			return "", fmt.Errorf("restore: %w", domain.ErrForbidden)
		}
		return domain.StatusDraft, nil
	}
	if p.Status == nil || *p.Status == from {
		return from, nil
	}

	to := *p.Status
	switch to {
	case domain.StatusDeleted:
		return to, nil
	case domain.StatusApproved, domain.StatusSkipped:
		if from == domain.StatusDraft {
			return to, nil
		}
	case domain.StatusDraft:
		return "", domain.NewValidationError("status", "returning to draft requires a claim or restore")
	}
	return "", domain.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", from, to))
}

// assignmentScoped reports whether the change is reserved to the holder:
// a status transition, or a content edit while the item is a draft.
func assignmentScoped(current domain.WorkItem, target domain.Status, p domain.FieldPatch) bool {
	if target != current.Status {
		return true
	}
	return current.Status == domain.StatusDraft && p.TouchesContent()
}

func checkMask(p domain.FieldPatch, mask domain.FieldMask) error {
	var errs []domain.FieldError
	for _, f := range p.Fields() {
		if !mask.Allows(f) {
			errs = append(errs, domain.FieldError{Field: f.String(), Message: "not permitted for caller"})
		}
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

func applyContent(item *domain.WorkItem, p domain.FieldPatch) {
	if p.Text != nil {
		item.Text = strings.TrimSpace(*p.Text)
	}
	if p.Labels != nil {
		item.Labels = domain.NormalizeLabels(*p.Labels)
	}
	if p.References != nil {
		item.References = slices.Clone(*p.References)
		if item.References == nil {
			item.References = []domain.Reference{}
		}
	}
	if p.Notes != nil {
		if n := strings.TrimSpace(*p.Notes); n != "" {
			item.Notes = &n
		} else {
			item.Notes = nil
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, domain.ErrOwnershipViolation):
		return "ownership_violation"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
