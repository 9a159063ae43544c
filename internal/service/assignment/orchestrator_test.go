package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/curation-backend/internal/adapter/memory"
	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/service/assignindex"
	"github.com/heartmarshall/curation-backend/internal/store"
)

type fixture struct {
	backend *memory.Backend
	store   *store.Store
	records *memory.IndexStore
	index   *assignindex.Index
	orch    *Orchestrator
}

func newFixture(t *testing.T, capability domain.BackendCapability) *fixture {
	t.Helper()

	log := testLogger()
	backend := memory.New(memory.WithCapability(capability))
	st, err := store.New(log, backend, store.Options{ReadAttempts: 1})
	require.NoError(t, err)

	records := memory.NewIndexStore()
	index := assignindex.NewIndex(log, records, st)
	policy := domain.DefaultPolicy()
	sampler := NewSampler(log, st, policy, SamplerOptions{})
	orch := NewOrchestrator(log, st, NewEngine(log, st), sampler, index, policy, 50)

	return &fixture{backend: backend, store: st, records: records, index: index, orch: orch}
}

func (f *fixture) seed(t *testing.T, group string, n int) []domain.ItemRef {
	t.Helper()
	refs := make([]domain.ItemRef, n)
	for i := range n {
		ref := domain.ItemRef{GroupKey: group, ID: fmt.Sprintf("%03d", i)}
		_, err := f.store.Create(context.Background(), domain.NewDraft(ref, "t", nil, nil, time.Now()))
		require.NoError(t, err)
		refs[i] = ref
	}
	return refs
}

func TestSelfAssign_PoolSmallerThanLimit(t *testing.T) {
	t.Parallel()

	for _, capability := range []domain.BackendCapability{domain.CapabilityAtomicPredicate, domain.CapabilityReadValidateWrite} {
		t.Run(capability.String(), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newFixture(t, capability)
			f.seed(t, "g", 3)

			res, err := f.orch.SelfAssign(ctx, "alice", 5)
			require.NoError(t, err)
			assert.Equal(t, 5, res.Requested)
			assert.Equal(t, 3, res.AssignedCount)
			for _, item := range res.Assigned {
				assert.True(t, item.IsAssignedTo("alice"))
				assert.Equal(t, domain.StatusDraft, item.Status)
			}
		})
	}
}

func TestSelfAssign_TwiceDoesNotDuplicateIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	f.seed(t, "a", 4)
	f.seed(t, "b", 4)

	first, err := f.orch.SelfAssign(ctx, "alice", 3)
	require.NoError(t, err)
	require.Equal(t, 3, first.AssignedCount)

	second, err := f.orch.SelfAssign(ctx, "alice", 3)
	require.NoError(t, err)
	require.Equal(t, 3, second.AssignedCount)

	recs, err := f.records.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 6)

	seen := map[domain.ItemRef]bool{}
	for _, r := range recs {
		assert.False(t, seen[r.Item], "duplicate record for %s", r.Item)
		seen[r.Item] = true
	}

	mine, err := f.index.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 6)
}

func TestSelfAssign_SpreadsAcrossGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	f.seed(t, "a", 10)
	f.seed(t, "b", 10)

	policy := domain.DefaultPolicy()
	sampler := NewSampler(testLogger(), f.store, policy, SamplerOptions{Shuffle: noShuffle})
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store), sampler, f.index, policy, 50)

	res, err := orch.SelfAssign(ctx, "alice", 4)
	require.NoError(t, err)
	require.Equal(t, 4, res.AssignedCount)

	perGroup := map[string]int{}
	for _, item := range res.Assigned {
		perGroup[item.GroupKey]++
	}
	assert.Equal(t, 2, perGroup["a"])
	assert.Equal(t, 2, perGroup["b"])
}

func TestSelfAssign_ConcurrentUsersNeverShareItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityReadValidateWrite)
	f.seed(t, "g", 20)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		owner = map[domain.ItemRef]string{}
	)
	for u := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", u)
			res, err := f.orch.SelfAssign(ctx, user, 5)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, item := range res.Assigned {
				if prev, ok := owner[item.Ref()]; ok {
					t.Errorf("%s assigned to both %s and %s", item.Ref(), prev, user)
				}
				owner[item.Ref()] = user
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(owner), 20)
	for ref, user := range owner {
		item, err := f.store.Read(ctx, ref)
		require.NoError(t, err)
		assert.True(t, item.IsAssignedTo(user))
	}
}

func TestSelfAssign_RetryPassExcludesSeen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	refs := f.seed(t, "g", 4)

	// First two are already held by bob.
	for _, ref := range refs[:2] {
		_, ok, err := f.store.Claim(ctx, ref, "bob")
		require.NoError(t, err)
		require.True(t, ok)
	}

	sampler := &candidateSamplerMock{
		SampleCandidatesFunc: func(ctx context.Context, userID string, limit int, exclude map[domain.ItemRef]struct{}) ([]domain.ItemRef, error) {
			if len(exclude) == 0 {
				return refs[:2], nil
			}
			return refs[2:], nil
		},
	}
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store), sampler, f.index, domain.DefaultPolicy(), 50)

	res, err := orch.SelfAssign(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AssignedCount)

	calls := sampler.SampleCandidatesCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[1].Limit)
	assert.Contains(t, calls[1].Exclude, refs[0])
	assert.Contains(t, calls[1].Exclude, refs[1])
}

func TestSelfAssign_OnlyOneExtraPass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	refs := f.seed(t, "g", 1)
	_, _, err := f.store.Claim(ctx, refs[0], "bob")
	require.NoError(t, err)

	sampler := &candidateSamplerMock{
		SampleCandidatesFunc: func(ctx context.Context, userID string, limit int, exclude map[domain.ItemRef]struct{}) ([]domain.ItemRef, error) {
			return refs, nil
		},
	}
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store), sampler, f.index, domain.DefaultPolicy(), 50)

	res, err := orch.SelfAssign(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AssignedCount)
	assert.Len(t, sampler.SampleCandidatesCalls(), 2)
}

func TestSelfAssign_IndexFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	f.seed(t, "g", 2)

	index := &assignmentIndexMock{
		UpsertFunc: func(context.Context, string, domain.WorkItem) error {
			return fmt.Errorf("index: %w", domain.ErrStoreUnavailable)
		},
	}
	policy := domain.DefaultPolicy()
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store),
		NewSampler(testLogger(), f.store, policy, SamplerOptions{}), index, policy, 50)

	res, err := orch.SelfAssign(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AssignedCount)
	assert.Len(t, index.UpsertCalls(), 2)
}

// flakyRecords fails the first n upserts.
type flakyRecords struct {
	*memory.IndexStore
	mu sync.Mutex
	n  int
}

func (r *flakyRecords) Upsert(ctx context.Context, rec domain.AssignmentRecord) error {
	r.mu.Lock()
	fail := r.n > 0
	if fail {
		r.n--
	}
	r.mu.Unlock()
	if fail {
		return domain.ErrStoreUnavailable
	}
	return r.IndexStore.Upsert(ctx, rec)
}

func TestSelfAssign_LostIndexWriteIsRestoredOnRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	f.seed(t, "g", 3)

	records := &flakyRecords{IndexStore: memory.NewIndexStore(), n: 1}
	index := assignindex.NewIndex(testLogger(), records, f.store)
	policy := domain.DefaultPolicy()
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store),
		NewSampler(testLogger(), f.store, policy, SamplerOptions{}), index, policy, 50)

	res, err := orch.SelfAssign(ctx, "alice", 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.AssignedCount)

	recs, err := records.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, recs)

	for range 2 {
		mine, err := index.ListByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, res.Assigned[0].Ref(), mine[0].Ref())
	}

	recs, err = records.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Assigned[0].Ref(), recs[0].Item)
}

func TestSelfAssign_CancelledKeepsCommittedClaims(t *testing.T) {
	t.Parallel()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	refs := f.seed(t, "g", 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	index := &assignmentIndexMock{
		UpsertFunc: func(context.Context, string, domain.WorkItem) error {
			cancel()
			return nil
		},
	}
	sampler := &candidateSamplerMock{
		SampleCandidatesFunc: func(context.Context, string, int, map[domain.ItemRef]struct{}) ([]domain.ItemRef, error) {
			return refs, nil
		},
	}
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store), sampler, index, domain.DefaultPolicy(), 50)

	res, err := orch.SelfAssign(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssignedCount)

	held, err := f.store.Read(context.Background(), res.Assigned[0].Ref())
	require.NoError(t, err)
	assert.True(t, held.IsAssignedTo("alice"))
}

func TestSelfAssign_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, domain.CapabilityAtomicPredicate)

	_, err := f.orch.SelfAssign(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.orch.SelfAssign(context.Background(), "alice", 51)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.orch.SelfAssign(context.Background(), "", 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSelfAssign_SamplingErrorOnFirstPass(t *testing.T) {
	t.Parallel()
	f := newFixture(t, domain.CapabilityAtomicPredicate)

	boom := errors.New("boom")
	sampler := &candidateSamplerMock{
		SampleCandidatesFunc: func(context.Context, string, int, map[domain.ItemRef]struct{}) ([]domain.ItemRef, error) {
			return nil, boom
		},
	}
	orch := NewOrchestrator(testLogger(), f.store, NewEngine(testLogger(), f.store), sampler, f.index, domain.DefaultPolicy(), 50)

	_, err := orch.SelfAssign(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, boom)
}

func TestAssignSingle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	ref := f.seed(t, "g", 1)[0]

	item, err := f.orch.AssignSingle(ctx, "alice", ref, false)
	require.NoError(t, err)
	assert.True(t, item.IsAssignedTo("alice"))

	// Holder re-assigning is idempotent.
	_, err = f.orch.AssignSingle(ctx, "alice", ref, false)
	require.NoError(t, err)

	_, err = f.orch.AssignSingle(ctx, "bob", ref, false)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "alice", ce.Holder)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.orch.AssignSingle(ctx, "bob", domain.ItemRef{GroupKey: "g", ID: "missing"}, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignSingle_ForceTakesOver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityReadValidateWrite)
	ref := f.seed(t, "g", 1)[0]

	_, err := f.orch.AssignSingle(ctx, "alice", ref, false)
	require.NoError(t, err)

	item, err := f.orch.AssignSingle(ctx, "admin", ref, true)
	require.NoError(t, err)
	assert.True(t, item.IsAssignedTo("admin"))

	aliceRecs, err := f.records.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, aliceRecs)

	adminItems, err := f.index.ListByUser(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, adminItems, 1)
	assert.Equal(t, ref, adminItems[0].Ref())
}

// racingStore lets another admin take the item over just before the
// wrapped replace runs.
type racingStore struct {
	*store.Store
	rival string
}

func (r *racingStore) ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error) {
	current, err := r.Store.Read(ctx, item.Ref())
	if err != nil {
		return domain.WorkItem{}, err
	}
	stolen := current.Clone()
	stolen.ApplyClaim(r.rival, time.Now())
	if _, err := r.Store.ConditionalReplace(ctx, stolen, current.Version); err != nil {
		return domain.WorkItem{}, err
	}
	return r.Store.ConditionalReplace(ctx, item, expected)
}

func TestAssignSingle_ForceLosesRaceReportsNewHolder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	ref := f.seed(t, "g", 1)[0]

	_, err := f.orch.AssignSingle(ctx, "alice", ref, false)
	require.NoError(t, err)

	rs := &racingStore{Store: f.store, rival: "carol"}
	policy := domain.DefaultPolicy()
	orch := NewOrchestrator(testLogger(), rs, NewEngine(testLogger(), f.store),
		NewSampler(testLogger(), f.store, policy, SamplerOptions{}), f.index, policy, 50)

	_, err = orch.AssignSingle(ctx, "admin", ref, true)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "carol", ce.Holder)
	assert.Equal(t, ref, ce.Item)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NotErrorIs(t, err, domain.ErrPreconditionFailed)

	current, err := f.store.Read(ctx, ref)
	require.NoError(t, err)
	assert.True(t, current.IsAssignedTo("carol"))
}

func TestAssignSingle_ReclaimsTerminalItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	ref := f.seed(t, "g", 1)[0]

	current, err := f.store.Read(ctx, ref)
	require.NoError(t, err)
	done := current.Clone()
	done.Status = domain.StatusApproved
	_, err = f.store.ConditionalReplace(ctx, done, current.Version)
	require.NoError(t, err)

	item, err := f.orch.AssignSingle(ctx, "bob", ref, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, item.Status)
	assert.True(t, item.IsAssignedTo("bob"))
}

func TestRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, domain.CapabilityAtomicPredicate)
	ref := f.seed(t, "g", 1)[0]

	_, err := f.orch.AssignSingle(ctx, "alice", ref, false)
	require.NoError(t, err)

	_, err = f.orch.Release(ctx, "bob", ref, false)
	assert.ErrorIs(t, err, domain.ErrOwnershipViolation)

	item, err := f.orch.Release(ctx, "alice", ref, false)
	require.NoError(t, err)
	assert.Nil(t, item.AssignedTo)

	recs, err := f.records.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Releasing again is a no-op.
	again, err := f.orch.Release(ctx, "alice", ref, false)
	require.NoError(t, err)
	assert.Equal(t, item.Version, again.Version)
}
