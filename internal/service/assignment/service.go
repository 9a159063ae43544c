// Package assignment hands out work items: the claim engine, the quota
// sampler that picks candidates across groups, and the orchestrator that
// drives batch self-assignment and single-item assignment.
package assignment

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

var (
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curation_claims_total",
			Help: "Claim attempts by result (won, lost, error).",
		},
		[]string{"result"},
	)
	selfAssignShortTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curation_self_assign_short_total",
		Help: "Self-assign calls that returned fewer items than requested.",
	})
	takeoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curation_forced_takeovers_total",
		Help: "Items reassigned by force from another holder.",
	})
	statsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curation_group_stats_cache_total",
			Help: "Group availability lookups by cache outcome (hit, miss).",
		},
		[]string{"outcome"},
	)
)

// itemStore is the slice of store.Store the package needs.
type itemStore interface {
	Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error)
	Claim(ctx context.Context, ref domain.ItemRef, callerID string) (domain.WorkItem, bool, error)
	ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error)
}

type candidateStore interface {
	Iterate(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error)
	GroupStats(ctx context.Context) ([]domain.GroupStat, error)
}

type assignmentIndex interface {
	Upsert(ctx context.Context, userID string, item domain.WorkItem) error
	DeleteBestEffort(ctx context.Context, userID string, ref domain.ItemRef)
}

type candidateSampler interface {
	SampleCandidates(ctx context.Context, userID string, limit int, exclude map[domain.ItemRef]struct{}) ([]domain.ItemRef, error)
}

type claimer interface {
	Claim(ctx context.Context, ref domain.ItemRef, userID string) (domain.ClaimResult, error)
}
