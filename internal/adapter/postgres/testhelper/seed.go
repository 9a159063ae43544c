package testhelper

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// UniqueGroup returns a group key no other test uses, so parallel tests
// sharing the container never see each other's rows.
func UniqueGroup(prefix string) string {
	return prefix + "/" + uuid.New().String()[:8]
}

// SeedItem inserts an unassigned draft and returns it as stored.
func SeedItem(t *testing.T, pool *pgxpool.Pool, group, id string) domain.WorkItem {
	t.Helper()
	item := domain.NewDraft(
		domain.ItemRef{GroupKey: group, ID: id},
		"seed text "+id,
		[]string{"seed"},
		nil,
		time.Now().Truncate(time.Microsecond),
	)
	return insert(t, pool, item)
}

// SeedAssigned inserts a draft already held by userID.
func SeedAssigned(t *testing.T, pool *pgxpool.Pool, group, id, userID string) domain.WorkItem {
	t.Helper()
	item := domain.NewDraft(
		domain.ItemRef{GroupKey: group, ID: id},
		"seed text "+id,
		nil,
		nil,
		time.Now().Truncate(time.Microsecond),
	)
	item.ApplyClaim(userID, item.CreatedAt)
	return insert(t, pool, item)
}

// SeedItems inserts n unassigned drafts with ids "0".."n-1".
func SeedItems(t *testing.T, pool *pgxpool.Pool, group string, n int) []domain.WorkItem {
	t.Helper()
	items := make([]domain.WorkItem, 0, n)
	for i := range n {
		items = append(items, SeedItem(t, pool, group, strconv.Itoa(i)))
	}
	return items
}

func insert(t *testing.T, pool *pgxpool.Pool, item domain.WorkItem) domain.WorkItem {
	t.Helper()

	refs, err := json.Marshal(item.References)
	if err != nil {
		t.Fatalf("testhelper: marshal refs: %v", err)
	}
	if item.Labels == nil {
		item.Labels = []string{}
	}

	var version int64
	err = pool.QueryRow(context.Background(),
		`INSERT INTO work_items (group_key, id, status, assigned_to, assigned_at, text, labels, refs,
		                         notes, reference_count, label_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING version`,
		item.GroupKey, item.ID, string(item.Status), item.AssignedTo, item.AssignedAt, item.Text,
		item.Labels, refs, item.Notes, item.ReferenceCount, item.LabelCount, item.CreatedAt, item.UpdatedAt,
	).Scan(&version)
	if err != nil {
		t.Fatalf("testhelper: insert work item %s: %v", item.Ref(), err)
	}

	item.Version = domain.Version(strconv.FormatInt(version, 10))
	return item
}
