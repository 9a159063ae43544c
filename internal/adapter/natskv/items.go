package natskv

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/store"
)

// Backend stores work items as JSON values in a KV bucket. The entry
// revision is the item version.
type Backend struct {
	kv jetstream.KeyValue
}

// NewBackend creates a backend over an opened items bucket.
func NewBackend(kv jetstream.KeyValue) *Backend {
	return &Backend{kv: kv}
}

var (
	_ store.Backend = (*Backend)(nil)
	_ store.Pinger  = (*Backend)(nil)
)

func (b *Backend) Capability() domain.BackendCapability {
	return domain.CapabilityReadValidateWrite
}

// Ping checks that the bucket answers.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.kv.Status(ctx)
	return mapError(err, "bucket", b.kv.Bucket())
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (b *Backend) Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error) {
	entry, err := b.kv.Get(ctx, itemKey(ref))
	if err != nil {
		return domain.WorkItem{}, mapError(err, "work_item", ref.String())
	}
	item, err := decodeItem(entry)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if item.Ref() != ref {
		// Token collision: the stored value belongs to another identity.
		return domain.WorkItem{}, fmt.Errorf("work_item %s: %w", ref, domain.ErrNotFound)
	}
	return item, nil
}

func (b *Backend) ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error) {
	out := make([]domain.WorkItem, 0, len(refs))
	for _, ref := range refs {
		item, err := b.Read(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Query scans the bucket (or one group's keys) and filters client-side.
func (b *Backend) Query(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error) {
	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return domain.ItemPage{}, err
	}

	var matched []domain.WorkItem
	err = b.scan(ctx, itemPattern(filter.GroupKey), func(item domain.WorkItem) {
		if !store.MatchFilter(item, filter) {
			return
		}
		if !filter.Randomize && cursor != "" && !store.After(item.Ref(), after) {
			return
		}
		matched = append(matched, item)
	})
	if err != nil {
		return domain.ItemPage{}, err
	}

	if filter.Randomize {
		rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
		if len(matched) > limit {
			matched = matched[:limit]
		}
		if matched == nil {
			matched = []domain.WorkItem{}
		}
		return domain.ItemPage{Items: matched}, nil
	}

	slices.SortFunc(matched, func(a, b domain.WorkItem) int {
		if c := cmp.Compare(a.GroupKey, b.GroupKey); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
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
	counts := make(map[string]int)
	err := b.scan(ctx, itemPattern(nil), func(item domain.WorkItem) {
		if store.Available(item) {
			counts[item.GroupKey]++
		}
	})
	if err != nil {
		return nil, err
	}

	stats := make([]domain.GroupStat, 0, len(counts))
	for g, n := range counts {
		stats = append(stats, domain.GroupStat{GroupKey: g, Available: n})
	}
	slices.SortFunc(stats, func(a, b domain.GroupStat) int { return cmp.Compare(a.GroupKey, b.GroupKey) })
	return stats, nil
}

// scan replays the current value of every key matching pattern. A watcher
// delivers existing entries first and then a nil marker.
func (b *Backend) scan(ctx context.Context, pattern string, fn func(domain.WorkItem)) error {
	w, err := b.kv.Watch(ctx, pattern, jetstream.IgnoreDeletes())
	if err != nil {
		return mapError(err, "work_items", pattern)
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return mapError(ctx.Err(), "work_items", pattern)
		case entry, ok := <-w.Updates():
			if !ok || entry == nil {
				return nil
			}
			item, err := decodeItem(entry)
			if err != nil {
				return err
			}
			fn(item)
		}
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// ConditionalReplace writes item with the expected revision as precondition.
func (b *Backend) ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error) {
	ref := item.Ref()
	data, err := encodeItem(item)
	if err != nil {
		return domain.WorkItem{}, err
	}

	if rev, ok := parseRevision(expected); ok {
		newRev, err := b.kv.Update(ctx, itemKey(ref), data, rev)
		if err == nil {
			saved := item.Clone()
			saved.Version = formatRevision(newRev)
			return saved, nil
		}
		if !isWrongRevision(err) {
			return domain.WorkItem{}, mapError(err, "work_item", ref.String())
		}
	}

	// Rejected: report the revision actually stored.
	entry, err := b.kv.Get(ctx, itemKey(ref))
	if err != nil {
		return domain.WorkItem{}, mapError(err, "work_item", ref.String())
	}
	return domain.WorkItem{}, &domain.PreconditionError{
		Item:     ref,
		Expected: expected,
		Current:  formatRevision(entry.Revision()),
	}
}

// Create inserts a new item; an existing key is a conflict.
func (b *Backend) Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	ref := item.Ref()
	data, err := encodeItem(item)
	if err != nil {
		return domain.WorkItem{}, err
	}

	rev, err := b.kv.Create(ctx, itemKey(ref), data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return domain.WorkItem{}, &domain.ConflictError{Item: ref}
		}
		return domain.WorkItem{}, mapError(err, "work_item", ref.String())
	}

	saved := item.Clone()
	saved.Version = formatRevision(rev)
	return saved, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type kvItem struct {
	GroupKey       string             `json:"group_key"`
	ID             string             `json:"id"`
	Status         domain.Status      `json:"status"`
	AssignedTo     *string            `json:"assigned_to,omitempty"`
	AssignedAt     *time.Time         `json:"assigned_at,omitempty"`
	Text           string             `json:"text"`
	Labels         []string           `json:"labels"`
	References     []domain.Reference `json:"references"`
	Notes          *string            `json:"notes,omitempty"`
	ReferenceCount int                `json:"reference_count"`
	LabelCount     int                `json:"label_count"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	UpdatedBy      *string            `json:"updated_by,omitempty"`
}

func encodeItem(item domain.WorkItem) ([]byte, error) {
	v := kvItem{
		GroupKey:       item.GroupKey,
		ID:             item.ID,
		Status:         item.Status,
		AssignedTo:     item.AssignedTo,
		AssignedAt:     item.AssignedAt,
		Text:           item.Text,
		Labels:         item.Labels,
		References:     item.References,
		Notes:          item.Notes,
		ReferenceCount: item.ReferenceCount,
		LabelCount:     item.LabelCount,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
		UpdatedBy:      item.UpdatedBy,
	}
	if v.Labels == nil {
		v.Labels = []string{}
	}
	if v.References == nil {
		v.References = []domain.Reference{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode work_item %s: %w", item.Ref(), err)
	}
	return data, nil
}

func decodeItem(entry jetstream.KeyValueEntry) (domain.WorkItem, error) {
	var v kvItem
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode %s: %w", entry.Key(), err)
	}
	return domain.WorkItem{
		GroupKey:       v.GroupKey,
		ID:             v.ID,
		Status:         v.Status,
		AssignedTo:     v.AssignedTo,
		AssignedAt:     v.AssignedAt,
		Version:        formatRevision(entry.Revision()),
		Text:           v.Text,
		Labels:         v.Labels,
		References:     v.References,
		Notes:          v.Notes,
		ReferenceCount: v.ReferenceCount,
		LabelCount:     v.LabelCount,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
		UpdatedBy:      v.UpdatedBy,
	}, nil
}
