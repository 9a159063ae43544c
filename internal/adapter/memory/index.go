package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

type indexKey struct {
	userID string
	id     uuid.UUID
}

// IndexStore keeps assignment records in memory.
type IndexStore struct {
	records *xsync.Map[indexKey, domain.AssignmentRecord]
}

// NewIndexStore creates an empty index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{records: xsync.NewMap[indexKey, domain.AssignmentRecord]()}
}

// Upsert stores rec unless a record with the same id already exists for the user.
func (s *IndexStore) Upsert(ctx context.Context, rec domain.AssignmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.records.LoadOrStore(indexKey{userID: rec.UserID, id: rec.ID}, rec)
	return nil
}

// ListByUser returns the user's records oldest first.
func (s *IndexStore) ListByUser(ctx context.Context, userID string) ([]domain.AssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.AssignmentRecord{}
	s.records.Range(func(k indexKey, rec domain.AssignmentRecord) bool {
		if k.userID == userID {
			out = append(out, rec)
		}
		return true
	})
	slices.SortFunc(out, func(a, b domain.AssignmentRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// Delete removes a record. Missing records are not an error.
func (s *IndexStore) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.records.Delete(indexKey{userID: userID, id: id})
	return nil
}
