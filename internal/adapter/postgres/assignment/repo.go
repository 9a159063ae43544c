// Package assignment persists the per-user assignment index in PostgreSQL.
package assignment

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	postgres "github.com/heartmarshall/curation-backend/internal/adapter/postgres"
	"github.com/heartmarshall/curation-backend/internal/domain"
)

// Repo provides assignment index persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new assignment index repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

const upsertSQL = `INSERT INTO assignment_index (user_id, id, group_key, item_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, id) DO NOTHING`

// Upsert stores rec. The record id is derived from the item identity, so a
// repeated upsert for the same user and item is a no-op.
func (r *Repo) Upsert(ctx context.Context, rec domain.AssignmentRecord) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	_, err := q.Exec(ctx, upsertSQL, rec.UserID, rec.ID, rec.Item.GroupKey, rec.Item.ID, rec.CreatedAt.UTC())
	if err != nil {
		return postgres.MapError(err, "assignment_index", rec.ID.String())
	}
	return nil
}

const listByUserSQL = `SELECT user_id, id, group_key, item_id, created_at
FROM assignment_index
WHERE user_id = $1
ORDER BY created_at, id`

// ListByUser returns the user's records oldest first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]domain.AssignmentRecord, error) {
	var rows []recordRow
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &rows, listByUserSQL, userID); err != nil {
		return nil, postgres.MapError(err, "assignment_index", userID)
	}

	out := make([]domain.AssignmentRecord, len(rows))
	for i, row := range rows {
		out[i] = domain.AssignmentRecord{
			ID:        row.ID,
			UserID:    row.UserID,
			Item:      domain.ItemRef{GroupKey: row.GroupKey, ID: row.ItemID},
			CreatedAt: row.CreatedAt.UTC(),
		}
	}
	return out, nil
}

const deleteSQL = `DELETE FROM assignment_index WHERE user_id = $1 AND id = $2`

// Delete removes one record. Deleting a missing record is not an error.
func (r *Repo) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	if _, err := q.Exec(ctx, deleteSQL, userID, id); err != nil {
		return postgres.MapError(err, "assignment_index", id.String())
	}
	return nil
}

type recordRow struct {
	UserID    string    `db:"user_id"`
	ID        uuid.UUID `db:"id"`
	GroupKey  string    `db:"group_key"`
	ItemID    string    `db:"item_id"`
	CreatedAt time.Time `db:"created_at"`
}
