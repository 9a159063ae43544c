// Package assignindex maintains the per-user list of assigned items. The
// list is advisory: the item's holder field is authoritative. Stale entries
// are dropped and missing ones restored when the list is read.
package assignindex

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

var (
	staleDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curation_index_stale_dropped_total",
		Help: "Index entries dropped on read because the item changed hands.",
	})
	missingRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curation_index_missing_restored_total",
		Help: "Held items found on read that had no index entry.",
	})
	deleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curation_index_delete_failures_total",
		Help: "Best-effort index deletes that failed.",
	})
)

type recordStore interface {
	Upsert(ctx context.Context, rec domain.AssignmentRecord) error
	ListByUser(ctx context.Context, userID string) ([]domain.AssignmentRecord, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

type itemReader interface {
	ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error)
	Iterate(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error)
}

// heldScanPage is the page size used when scanning the store for a user's
// held drafts.
const heldScanPage = 200

// Index is the materialized assignment index.
type Index struct {
	records recordStore
	items   itemReader
	now     func() time.Time
	log     *slog.Logger
}

// NewIndex creates an index over a record store and the item store.
func NewIndex(log *slog.Logger, records recordStore, items itemReader) *Index {
	return &Index{
		records: records,
		items:   items,
		now:     time.Now,
		log:     log.With("service", "assignindex"),
	}
}

// Upsert records that userID holds item. Repeating it is a no-op because the
// record id is derived from the item identity.
func (x *Index) Upsert(ctx context.Context, userID string, item domain.WorkItem) error {
	rec := domain.NewAssignmentRecord(userID, item.Ref(), x.now())
	if err := x.records.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert assignment record: %w", err)
	}
	return nil
}

// ListByUser returns the items userID currently holds. Items with a record
// come first in the order they were assigned. Records whose item is gone or
// now held by someone else are skipped and deleted best-effort. Held drafts
// with no record are appended by assignment time and their records are
// written back best-effort.
func (x *Index) ListByUser(ctx context.Context, userID string) ([]domain.WorkItem, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	recs, err := x.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignment records: %w", err)
	}

	out := make([]domain.WorkItem, 0, len(recs))
	known := make(map[domain.ItemRef]struct{}, len(recs))
	if len(recs) > 0 {
		refs := make([]domain.ItemRef, len(recs))
		for i, rec := range recs {
			refs[i] = rec.Item
			known[rec.Item] = struct{}{}
		}
		items, err := x.items.ReadMany(ctx, refs)
		if err != nil {
			return nil, fmt.Errorf("read assigned items: %w", err)
		}
		byRef := make(map[domain.ItemRef]domain.WorkItem, len(items))
		for _, it := range items {
			byRef[it.Ref()] = it
		}

		for _, rec := range recs {
			item, ok := byRef[rec.Item]
			if !ok || !item.IsAssignedTo(userID) {
				staleDroppedTotal.Inc()
				x.deleteRecord(ctx, userID, rec.ID, rec.Item)
				continue
			}
			out = append(out, item)
		}
	}

	return append(out, x.restoreMissing(ctx, userID, known)...), nil
}

// restoreMissing finds drafts held by userID that have no record. A failed
// scan is logged and yields nothing; the next read tries again.
func (x *Index) restoreMissing(ctx context.Context, userID string, known map[domain.ItemRef]struct{}) []domain.WorkItem {
	draft := domain.StatusDraft
	filter := domain.ItemFilter{AssignedTo: &userID, Status: &draft}

	var missing []domain.WorkItem
	cursor := ""
	for {
		page, err := x.items.Iterate(ctx, filter, heldScanPage, cursor)
		if err != nil {
			x.log.WarnContext(ctx, "assignment index reconcile scan failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		for _, it := range page.Items {
			if _, ok := known[it.Ref()]; ok || !it.IsAssignedTo(userID) {
				continue
			}
			missing = append(missing, it)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(missing) == 0 {
		return nil
	}

	slices.SortStableFunc(missing, func(a, b domain.WorkItem) int {
		return assignedAt(a).Compare(assignedAt(b))
	})
	for _, it := range missing {
		missingRestoredTotal.Inc()
		rec := domain.NewAssignmentRecord(userID, it.Ref(), assignedAt(it))
		if err := x.records.Upsert(ctx, rec); err != nil {
			x.log.WarnContext(ctx, "assignment index restore failed",
				slog.String("user_id", userID),
				slog.String("item", it.Ref().String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return missing
}

func assignedAt(item domain.WorkItem) time.Time {
	if item.AssignedAt == nil {
		return time.Time{}
	}
	return *item.AssignedAt
}

// DeleteBestEffort removes the record for ref from userID's list. Failures
// are logged, never returned.
func (x *Index) DeleteBestEffort(ctx context.Context, userID string, ref domain.ItemRef) {
	x.deleteRecord(ctx, userID, domain.AssignmentRecordID(ref), ref)
}

func (x *Index) deleteRecord(ctx context.Context, userID string, id uuid.UUID, ref domain.ItemRef) {
	if err := x.records.Delete(ctx, userID, id); err != nil {
		deleteFailuresTotal.Inc()
		x.log.WarnContext(ctx, "assignment index delete failed",
			slog.String("user_id", userID),
			slog.String("item", ref.String()),
			slog.String("error", err.Error()),
		)
	}
}
