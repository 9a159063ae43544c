package natskv

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// IndexStore keeps assignment records in a KV bucket under
// assign.<user token>.<record id>.
type IndexStore struct {
	kv jetstream.KeyValue
}

// NewIndexStore creates an index store over an opened bucket.
func NewIndexStore(kv jetstream.KeyValue) *IndexStore {
	return &IndexStore{kv: kv}
}

type kvRecord struct {
	UserID    string    `json:"user_id"`
	GroupKey  string    `json:"group_key"`
	ItemID    string    `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Upsert creates the record if it does not exist yet. An existing record is
// left untouched so its creation time keeps the user's ordering stable.
func (s *IndexStore) Upsert(ctx context.Context, rec domain.AssignmentRecord) error {
	data, err := json.Marshal(kvRecord{
		UserID:    rec.UserID,
		GroupKey:  rec.Item.GroupKey,
		ItemID:    rec.Item.ID,
		CreatedAt: rec.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode assignment record: %w", err)
	}

	_, err = s.kv.Create(ctx, indexKey(rec.UserID, rec.ID), data)
	if err != nil && !errors.Is(err, jetstream.ErrKeyExists) {
		return mapError(err, "assignment_index", rec.ID.String())
	}
	return nil
}

// ListByUser returns the user's records oldest first.
func (s *IndexStore) ListByUser(ctx context.Context, userID string) ([]domain.AssignmentRecord, error) {
	pattern := indexPattern(userID)
	w, err := s.kv.Watch(ctx, pattern, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, mapError(err, "assignment_index", userID)
	}
	defer func() { _ = w.Stop() }()

	out := []domain.AssignmentRecord{}
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return nil, mapError(ctx.Err(), "assignment_index", userID)
		case entry, ok := <-w.Updates():
			if !ok || entry == nil {
				done = true
				break
			}
			rec, ok := decodeRecord(entry)
			if ok && rec.UserID == userID {
				out = append(out, rec)
			}
		}
	}

	slices.SortFunc(out, func(a, b domain.AssignmentRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// Delete removes one record. Missing records are not an error.
func (s *IndexStore) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	err := s.kv.Delete(ctx, indexKey(userID, id))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return mapError(err, "assignment_index", id.String())
	}
	return nil
}

func decodeRecord(entry jetstream.KeyValueEntry) (domain.AssignmentRecord, bool) {
	var v kvRecord
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return domain.AssignmentRecord{}, false
	}
	ref := domain.ItemRef{GroupKey: v.GroupKey, ID: v.ItemID}
	return domain.AssignmentRecord{
		ID:        domain.AssignmentRecordID(ref),
		UserID:    v.UserID,
		Item:      ref,
		CreatedAt: v.CreatedAt,
	}, true
}
