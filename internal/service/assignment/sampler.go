package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

const statsCacheKey = "groups"

// SamplerOptions tunes candidate sampling.
type SamplerOptions struct {
	// GroupWeights fixes the relative share of each group. Groups missing
	// from a non-empty map are never sampled. When empty, groups are
	// weighted by their number of available items.
	GroupWeights map[string]float64
	// StatsTTL caches group availability for this long. Zero disables caching.
	StatsTTL time.Duration
	// StatsCacheSize bounds the availability cache.
	StatsCacheSize int
	// Shuffle permutes the merged candidate list. Defaults to rand.Shuffle.
	Shuffle func(n int, swap func(i, j int))
}

// Sampler picks claim candidates spread across groups by quota.
type Sampler struct {
	store   candidateStore
	policy  domain.Policy
	weights map[string]float64
	stats   *expirable.LRU[string, []domain.GroupStat]
	shuffle func(n int, swap func(i, j int))
	log     *slog.Logger
}

// NewSampler creates a sampler.
func NewSampler(log *slog.Logger, store candidateStore, policy domain.Policy, opts SamplerOptions) *Sampler {
	s := &Sampler{
		store:   store,
		policy:  policy,
		weights: maps.Clone(opts.GroupWeights),
		shuffle: opts.Shuffle,
		log:     log.With("service", "sampler"),
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	if opts.StatsTTL > 0 {
		s.stats = expirable.NewLRU[string, []domain.GroupStat](max(opts.StatsCacheSize, 1), nil, opts.StatsTTL)
	}
	return s
}

// SampleCandidates returns up to limit × over-fetch factor candidate refs.
// Quotas are computed over groups with available items, each group's
// candidates are fetched concurrently, merged round-robin in group key order,
// shuffled once and filtered against exclude. The result may be shorter than
// limit, or empty, when the pool runs dry.
func (s *Sampler) SampleCandidates(ctx context.Context, userID string, limit int, exclude map[domain.ItemRef]struct{}) ([]domain.ItemRef, error) {
	if limit <= 0 {
		return []domain.ItemRef{}, nil
	}

	stats, err := s.groupStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("group stats: %w", err)
	}

	weights := make(map[string]float64, len(stats))
	caps := make(map[string]int, len(stats))
	for _, st := range stats {
		if st.Available <= 0 {
			continue
		}
		caps[st.GroupKey] = st.Available
		if len(s.weights) > 0 {
			weights[st.GroupKey] = s.weights[st.GroupKey]
		} else {
			weights[st.GroupKey] = float64(st.Available)
		}
	}

	quotas := ComputeQuotas(weights, limit, caps)
	groups := slices.Sorted(maps.Keys(quotas))

	perGroup := make([][]domain.ItemRef, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		g.Go(func() error {
			refs, err := s.fetch(gctx, group, s.policy.FetchSize(quotas[group]))
			if err != nil {
				return fmt.Errorf("fetch candidates for %s: %w", group, err)
			}
			perGroup[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := interleave(perGroup)
	s.shuffle(len(merged), func(i, j int) { merged[i], merged[j] = merged[j], merged[i] })

	out := make([]domain.ItemRef, 0, len(merged))
	seen := make(map[domain.ItemRef]struct{}, len(merged))
	for _, ref := range merged {
		if _, skip := exclude[ref]; skip {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}

	s.log.DebugContext(ctx, "candidates sampled",
		slog.String("user_id", userID),
		slog.Int("limit", limit),
		slog.Int("groups", len(groups)),
		slog.Int("candidates", len(out)),
	)
	return out, nil
}

// Invalidate drops cached group availability.
func (s *Sampler) Invalidate() {
	if s.stats != nil {
		s.stats.Remove(statsCacheKey)
	}
}

func (s *Sampler) groupStats(ctx context.Context) ([]domain.GroupStat, error) {
	if s.stats != nil {
		if stats, ok := s.stats.Get(statsCacheKey); ok {
			statsCacheTotal.WithLabelValues("hit").Inc()
			return stats, nil
		}
		statsCacheTotal.WithLabelValues("miss").Inc()
	}

	stats, err := s.store.GroupStats(ctx)
	if err != nil {
		return nil, err
	}
	if s.stats != nil {
		s.stats.Add(statsCacheKey, stats)
	}
	return stats, nil
}

func (s *Sampler) fetch(ctx context.Context, group string, n int) ([]domain.ItemRef, error) {
	if n <= 0 {
		return nil, nil
	}
	draft := domain.StatusDraft
	page, err := s.store.Iterate(ctx, domain.ItemFilter{
		GroupKey:   &group,
		Status:     &draft,
		Unassigned: true,
		Randomize:  true,
	}, n, "")
	if err != nil {
		return nil, err
	}
	refs := make([]domain.ItemRef, 0, len(page.Items))
	for _, item := range page.Items {
		refs = append(refs, item.Ref())
	}
	return refs, nil
}

// interleave merges lists round-robin: first of each, then second of each.
func interleave(lists [][]domain.ItemRef) []domain.ItemRef {
	total, longest := 0, 0
	for _, l := range lists {
		total += len(l)
		longest = max(longest, len(l))
	}
	out := make([]domain.ItemRef, 0, total)
	for i := range longest {
		for _, l := range lists {
			if i < len(l) {
				out = append(out, l[i])
			}
		}
	}
	return out
}
