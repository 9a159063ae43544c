package workitem

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func ptr[T any](v T) *T { return &v }

// itemRows renders items as the columns SELECT/RETURNING produce, using the
// exact Go types the scan targets expect.
func itemRows(items ...domain.WorkItem) *pgxmock.Rows {
	rows := pgxmock.NewRows(columns)
	for _, it := range items {
		var assignedAt *time.Time
		if it.AssignedAt != nil {
			assignedAt = ptr(*it.AssignedAt)
		}
		version, _ := parseVersion(it.Version)
		refs, _ := marshalRefs(it.References)
		rows.AddRow(
			it.GroupKey, it.ID, string(it.Status), it.AssignedTo, assignedAt, version,
			it.Text, nonNilLabels(it.Labels), refs, it.Notes, it.ReferenceCount, it.LabelCount,
			it.CreatedAt, it.UpdatedAt, it.UpdatedBy,
		)
	}
	return rows
}

func draft(group, id string) domain.WorkItem {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.WorkItem{
		GroupKey:   group,
		ID:         id,
		Status:     domain.StatusDraft,
		Version:    "1",
		Text:       "text",
		Labels:     []string{"a"},
		References: []domain.Reference{{Source: "s"}},
		LabelCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

var testRef = domain.ItemRef{GroupKey: "news/2024-q1", ID: "42"}

// ---------------------------------------------------------------------------
// ConditionalClaim
// ---------------------------------------------------------------------------

func TestRepo_ConditionalClaim_Success(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	claimed := draft(testRef.GroupKey, testRef.ID)
	claimed.ApplyClaim("alice", now)
	claimed.Version = "2"

	mock.ExpectQuery(`UPDATE work_items`).
		WithArgs(testRef.GroupKey, testRef.ID, "alice", now).
		WillReturnRows(itemRows(claimed))

	got, ok, err := repo.ConditionalClaim(context.Background(), testRef, "alice", now)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Version("2"), got.Version)
	assert.True(t, got.IsAssignedTo("alice"))
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, []domain.Reference{{Source: "s"}}, got.References)
}

func TestRepo_ConditionalClaim_HeldByOther(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`UPDATE work_items`).
		WithArgs(testRef.GroupKey, testRef.ID, "alice", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, ok, err := repo.ConditionalClaim(context.Background(), testRef, "alice", time.Now())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepo_ConditionalClaim_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`UPDATE work_items`).
		WithArgs(testRef.GroupKey, testRef.ID, "alice", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, ok, err := repo.ConditionalClaim(context.Background(), testRef, "alice", time.Now())

	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, ok)
}

func TestRepo_ConditionalClaim_ConnectionLost(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`UPDATE work_items`).
		WithArgs(testRef.GroupKey, testRef.ID, "alice", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "08006"})

	_, _, err := repo.ConditionalClaim(context.Background(), testRef, "alice", time.Now())

	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// ---------------------------------------------------------------------------
// ConditionalReplace
// ---------------------------------------------------------------------------

func TestRepo_ConditionalReplace_Success(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	item := draft(testRef.GroupKey, testRef.ID)
	item.Status = domain.StatusApproved
	saved := item
	saved.Version = "8"

	mock.ExpectQuery(`UPDATE work_items`).
		WithArgs(
			testRef.GroupKey, testRef.ID, "approved", pgxmock.AnyArg(), pgxmock.AnyArg(),
			"text", []string{"a"}, pgxmock.AnyArg(), pgxmock.AnyArg(), 0, 1,
			pgxmock.AnyArg(), pgxmock.AnyArg(), int64(7),
		).
		WillReturnRows(itemRows(saved))

	got, err := repo.ConditionalReplace(context.Background(), item, "7")

	require.NoError(t, err)
	assert.Equal(t, domain.Version("8"), got.Version)
	assert.Equal(t, domain.StatusApproved, got.Status)
}

func TestRepo_ConditionalReplace_StaleVersion(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`UPDATE work_items`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT version FROM work_items`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(9)))

	_, err := repo.ConditionalReplace(context.Background(), draft(testRef.GroupKey, testRef.ID), "7")

	var pe *domain.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.Version("9"), pe.Current)
	assert.Equal(t, domain.Version("7"), pe.Expected)
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestRepo_ConditionalReplace_UnparsableVersionSkipsUpdate(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`SELECT version FROM work_items`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))

	_, err := repo.ConditionalReplace(context.Background(), draft(testRef.GroupKey, testRef.ID), "abc")

	var pe *domain.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.Version("3"), pe.Current)
}

func TestRepo_ConditionalReplace_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`UPDATE work_items`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT version FROM work_items`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ConditionalReplace(context.Background(), draft(testRef.GroupKey, testRef.ID), "1")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestRepo_Create_Duplicate(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`INSERT INTO work_items`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), draft(testRef.GroupKey, testRef.ID))

	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, testRef, ce.Item)
	assert.Empty(t, ce.Holder)
}

func TestRepo_CreateMany_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	first := draft("g", "1")
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO work_items`).WillReturnRows(itemRows(first))
	mock.ExpectQuery(`INSERT INTO work_items`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateMany(context.Background(), []domain.WorkItem{first, draft("g", "2")})

	require.ErrorIs(t, err, domain.ErrConflict)
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

func TestRepo_Read_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	mock.ExpectQuery(`SELECT .+ FROM work_items`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Read(context.Background(), testRef)

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_Read_DecodesRow(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := New(mock)

	stored := draft(testRef.GroupKey, testRef.ID)
	stored.Notes = ptr("check source")
	mock.ExpectQuery(`SELECT .+ FROM work_items`).
		WithArgs(testRef.GroupKey, testRef.ID).
		WillReturnRows(itemRows(stored))

	got, err := repo.Read(context.Background(), testRef)

	require.NoError(t, err)
	assert.Equal(t, stored.Ref(), got.Ref())
	assert.Equal(t, domain.Version("1"), got.Version)
	assert.Equal(t, "check source", *got.Notes)
	assert.Nil(t, got.AssignedTo)
}
