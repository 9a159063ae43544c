// Package workitem implements the work-item store backend on PostgreSQL.
// Claims run as a single conditional UPDATE, so the backend declares the
// atomic_predicate capability.
package workitem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/curation-backend/internal/adapter/postgres"
	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{
	"group_key", "id", "status", "assigned_to", "assigned_at", "version",
	"text", "labels", "refs", "notes", "reference_count", "label_count",
	"created_at", "updated_at", "updated_by",
}

var columnList = strings.Join(columns, ", ")

// Repo provides work-item persistence backed by PostgreSQL.
type Repo struct {
	db  postgres.DB
	txm *postgres.TxManager
}

// New creates a new work-item repository.
func New(db postgres.DB) *Repo {
	return &Repo{db: db, txm: postgres.NewTxManager(db)}
}

var (
	_ store.Backend       = (*Repo)(nil)
	_ store.AtomicClaimer = (*Repo)(nil)
	_ store.BatchCreator  = (*Repo)(nil)
	_ store.Pinger        = (*Repo)(nil)
)

func (r *Repo) Capability() domain.BackendCapability {
	return domain.CapabilityAtomicPredicate
}

// Ping checks connectivity when the underlying handle supports it.
func (r *Repo) Ping(ctx context.Context) error {
	p, ok := r.db.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return postgres.MapError(p.Ping(ctx), "ping", "")
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

const readSQL = `SELECT %s FROM work_items WHERE group_key = $1 AND id = $2`

// Read returns one work item by identity.
func (r *Repo) Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	var row itemRow
	err := q.QueryRow(ctx, fmt.Sprintf(readSQL, columnList), ref.GroupKey, ref.ID).Scan(row.dest()...)
	if err != nil {
		return domain.WorkItem{}, postgres.MapError(err, "work_item", ref.String())
	}
	return row.toDomain()
}

const readManySQL = `SELECT %s FROM work_items
WHERE (group_key, id) IN (SELECT * FROM unnest($1::text[], $2::text[]))`

// ReadMany returns the existing items among refs in request order.
func (r *Repo) ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error) {
	if len(refs) == 0 {
		return []domain.WorkItem{}, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.db)

	groups := make([]string, len(refs))
	ids := make([]string, len(refs))
	for i, ref := range refs {
		groups[i], ids[i] = ref.GroupKey, ref.ID
	}

	var rows []itemRow
	if err := pgxscan.Select(ctx, q, &rows, fmt.Sprintf(readManySQL, columnList), groups, ids); err != nil {
		return nil, postgres.MapError(err, "work_items", "")
	}

	byRef := make(map[domain.ItemRef]domain.WorkItem, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		byRef[item.Ref()] = item
	}

	out := make([]domain.WorkItem, 0, len(byRef))
	for _, ref := range refs {
		if item, ok := byRef[ref]; ok {
			out = append(out, item)
			delete(byRef, ref)
		}
	}
	return out, nil
}

// Query returns a page of items matching filter in (group_key, id) order,
// or a random sample when filter.Randomize is set.
func (r *Repo) Query(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error) {
	qb := psql.Select(columns...).From("work_items")

	if filter.GroupKey != nil {
		qb = qb.Where(sq.Eq{"group_key": *filter.GroupKey})
	}
	if filter.Status != nil {
		qb = qb.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.AssignedTo != nil {
		qb = qb.Where(sq.Eq{"assigned_to": *filter.AssignedTo})
	}
	if filter.Unassigned {
		qb = qb.Where(sq.Eq{"assigned_to": nil})
	}

	if filter.Randomize {
		qb = qb.OrderBy("random()").Limit(uint64(limit))
	} else {
		if cursor != "" {
			after, err := store.DecodeCursor(cursor)
			if err != nil {
				return domain.ItemPage{}, err
			}
			qb = qb.Where(sq.Expr("(group_key, id) > (?, ?)", after.GroupKey, after.ID))
		}
		qb = qb.OrderBy("group_key", "id").Limit(uint64(limit) + 1)
	}

	sql, args, err := qb.ToSql()
	if err != nil {
		return domain.ItemPage{}, fmt.Errorf("build work_items query: %w", err)
	}

	var rows []itemRow
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &rows, sql, args...); err != nil {
		return domain.ItemPage{}, postgres.MapError(err, "work_items", "")
	}

	items := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return domain.ItemPage{}, err
		}
		items = append(items, item)
	}

	page := domain.ItemPage{Items: items}
	if !filter.Randomize && len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = store.EncodeCursor(page.Items[limit-1].Ref())
	}
	return page, nil
}

const groupStatsSQL = `SELECT group_key, count(*) AS available
FROM work_items
WHERE status = 'draft' AND assigned_to IS NULL
GROUP BY group_key
ORDER BY group_key`

// GroupStats counts unassigned drafts per group.
func (r *Repo) GroupStats(ctx context.Context) ([]domain.GroupStat, error) {
	var rows []struct {
		GroupKey  string `db:"group_key"`
		Available int    `db:"available"`
	}
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &rows, groupStatsSQL); err != nil {
		return nil, postgres.MapError(err, "group_stats", "")
	}

	stats := make([]domain.GroupStat, len(rows))
	for i, row := range rows {
		stats[i] = domain.GroupStat{GroupKey: row.GroupKey, Available: row.Available}
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

const claimSQL = `UPDATE work_items
SET assigned_to = $3,
    assigned_at = $4,
    status      = 'draft',
    version     = version + 1,
    updated_at  = $4
WHERE group_key = $1 AND id = $2
  AND (assigned_to IS NULL OR assigned_to = $3 OR status <> 'draft')
RETURNING %s`

const existsSQL = `SELECT EXISTS(SELECT 1 FROM work_items WHERE group_key = $1 AND id = $2)`

// ConditionalClaim assigns the item to callerID if the claim predicate holds
// at write time. The predicate is evaluated by PostgreSQL under the row lock
// taken by UPDATE, so of N racing callers exactly one sees it hold.
func (r *Repo) ConditionalClaim(ctx context.Context, ref domain.ItemRef, callerID string, now time.Time) (domain.WorkItem, bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	var row itemRow
	err := q.QueryRow(ctx, fmt.Sprintf(claimSQL, columnList), ref.GroupKey, ref.ID, callerID, now.UTC()).Scan(row.dest()...)
	if err == nil {
		item, convErr := row.toDomain()
		return item, convErr == nil, convErr
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.WorkItem{}, false, postgres.MapError(err, "work_item", ref.String())
	}

	// No row updated: the item is missing or held by someone else.
	var exists bool
	if err := q.QueryRow(ctx, existsSQL, ref.GroupKey, ref.ID).Scan(&exists); err != nil {
		return domain.WorkItem{}, false, postgres.MapError(err, "work_item", ref.String())
	}
	if !exists {
		return domain.WorkItem{}, false, fmt.Errorf("work_item %s: %w", ref, domain.ErrNotFound)
	}
	return domain.WorkItem{}, false, nil
}

const replaceSQL = `UPDATE work_items
SET status          = $3,
    assigned_to     = $4,
    assigned_at     = $5,
    text            = $6,
    labels          = $7,
    refs            = $8,
    notes           = $9,
    reference_count = $10,
    label_count     = $11,
    updated_at      = $12,
    updated_by      = $13,
    version         = version + 1
WHERE group_key = $1 AND id = $2 AND version = $14
RETURNING %s`

const versionSQL = `SELECT version FROM work_items WHERE group_key = $1 AND id = $2`

// ConditionalReplace writes every mutable field of item if the stored version
// equals expected.
func (r *Repo) ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)
	ref := item.Ref()

	if exp, ok := parseVersion(expected); ok {
		refs, err := marshalRefs(item.References)
		if err != nil {
			return domain.WorkItem{}, err
		}

		var row itemRow
		err = q.QueryRow(ctx, fmt.Sprintf(replaceSQL, columnList),
			item.GroupKey, item.ID, string(item.Status), item.AssignedTo, utcPtr(item.AssignedAt),
			item.Text, nonNilLabels(item.Labels), refs, item.Notes, item.ReferenceCount, item.LabelCount,
			item.UpdatedAt.UTC(), item.UpdatedBy, exp,
		).Scan(row.dest()...)
		if err == nil {
			return row.toDomain()
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkItem{}, postgres.MapError(err, "work_item", ref.String())
		}
	}

	// Nothing written: report the version actually stored.
	var current int64
	if err := q.QueryRow(ctx, versionSQL, ref.GroupKey, ref.ID).Scan(&current); err != nil {
		return domain.WorkItem{}, postgres.MapError(err, "work_item", ref.String())
	}
	return domain.WorkItem{}, &domain.PreconditionError{
		Item:     ref,
		Expected: expected,
		Current:  formatVersion(current),
	}
}

const createSQL = `INSERT INTO work_items (group_key, id, status, assigned_to, assigned_at, text, labels, refs,
                        notes, reference_count, label_count, created_at, updated_at, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING %s`

// Create inserts a new item. A duplicate identity is *domain.ConflictError.
func (r *Repo) Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)
	ref := item.Ref()

	refs, err := marshalRefs(item.References)
	if err != nil {
		return domain.WorkItem{}, err
	}

	var row itemRow
	err = q.QueryRow(ctx, fmt.Sprintf(createSQL, columnList),
		item.GroupKey, item.ID, string(item.Status), item.AssignedTo, utcPtr(item.AssignedAt),
		item.Text, nonNilLabels(item.Labels), refs, item.Notes, item.ReferenceCount, item.LabelCount,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(), item.UpdatedBy,
	).Scan(row.dest()...)
	if err != nil {
		mapped := postgres.MapError(err, "work_item", ref.String())
		if errors.Is(mapped, domain.ErrConflict) {
			return domain.WorkItem{}, &domain.ConflictError{Item: ref}
		}
		return domain.WorkItem{}, mapped
	}
	return row.toDomain()
}

// CreateMany inserts items in one transaction; any failure rolls back all.
func (r *Repo) CreateMany(ctx context.Context, items []domain.WorkItem) error {
	return r.txm.RunInTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			if _, err := r.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Mapping helpers: row -> domain
// ---------------------------------------------------------------------------

type itemRow struct {
	GroupKey       string     `db:"group_key"`
	ID             string     `db:"id"`
	Status         string     `db:"status"`
	AssignedTo     *string    `db:"assigned_to"`
	AssignedAt     *time.Time `db:"assigned_at"`
	Version        int64      `db:"version"`
	Text           string     `db:"text"`
	Labels         []string   `db:"labels"`
	Refs           []byte     `db:"refs"`
	Notes          *string    `db:"notes"`
	ReferenceCount int        `db:"reference_count"`
	LabelCount     int        `db:"label_count"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	UpdatedBy      *string    `db:"updated_by"`
}

// dest returns scan targets in the order of columns.
func (r *itemRow) dest() []any {
	return []any{
		&r.GroupKey, &r.ID, &r.Status, &r.AssignedTo, &r.AssignedAt, &r.Version,
		&r.Text, &r.Labels, &r.Refs, &r.Notes, &r.ReferenceCount, &r.LabelCount,
		&r.CreatedAt, &r.UpdatedAt, &r.UpdatedBy,
	}
}

func (r itemRow) toDomain() (domain.WorkItem, error) {
	item := domain.WorkItem{
		GroupKey:       r.GroupKey,
		ID:             r.ID,
		Status:         domain.Status(r.Status),
		AssignedTo:     r.AssignedTo,
		AssignedAt:     utcPtr(r.AssignedAt),
		Version:        formatVersion(r.Version),
		Text:           r.Text,
		Labels:         r.Labels,
		Notes:          r.Notes,
		ReferenceCount: r.ReferenceCount,
		LabelCount:     r.LabelCount,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		UpdatedBy:      r.UpdatedBy,
	}
	if item.Labels == nil {
		item.Labels = []string{}
	}
	item.References = []domain.Reference{}
	if len(r.Refs) > 0 {
		if err := json.Unmarshal(r.Refs, &item.References); err != nil {
			return domain.WorkItem{}, fmt.Errorf("work_item %s#%s: decode refs: %w", r.GroupKey, r.ID, err)
		}
	}
	return item, nil
}

func marshalRefs(refs []domain.Reference) ([]byte, error) {
	if refs == nil {
		refs = []domain.Reference{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode refs: %w", err)
	}
	return b, nil
}

func nonNilLabels(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func parseVersion(v domain.Version) (int64, bool) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	return n, err == nil
}

func formatVersion(n int64) domain.Version {
	return domain.Version(strconv.FormatInt(n, 10))
}
