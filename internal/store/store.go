package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

var (
	readRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curation_store_read_retries_total",
			Help: "Read attempts repeated after the store was unavailable.",
		},
		[]string{"op"},
	)
	unavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curation_store_unavailable_total",
			Help: "Store calls that failed because the backend was unavailable.",
		},
		[]string{"op"},
	)
)

// Options tunes the Store façade.
type Options struct {
	// ReadAttempts is the total number of tries for idempotent reads.
	ReadAttempts int
	// ReadRetryDelay is the first backoff interval; it doubles per retry.
	ReadRetryDelay time.Duration
	// CallTimeout bounds every backend call. Zero disables it.
	CallTimeout time.Duration
	// Now is the clock used for claim timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Store is the work-item store used by the services. Reads are retried with
// exponential backoff while the backend is unavailable; writes never are.
type Store struct {
	log     *slog.Logger
	backend Backend
	writer  ConditionalWriter
	opts    Options
}

// New wraps backend and selects its conditional write strategy.
func New(log *slog.Logger, backend Backend, opts Options) (*Store, error) {
	writer, err := NewConditionalWriter(backend)
	if err != nil {
		return nil, fmt.Errorf("select conditional writer: %w", err)
	}
	if opts.ReadAttempts < 1 {
		opts.ReadAttempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		log:     log.With("component", "store", "capability", writer.Capability().String()),
		backend: backend,
		writer:  writer,
		opts:    opts,
	}, nil
}

// Capability reports the strategy selected at construction.
func (s *Store) Capability() domain.BackendCapability {
	return s.writer.Capability()
}

// ---------------------------------------------------------------------------
// Reads (retried)
// ---------------------------------------------------------------------------

// Read returns the current state and version of one item.
func (s *Store) Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error) {
	return retryRead(ctx, s, "read", func(ctx context.Context) (domain.WorkItem, error) {
		return s.backend.Read(ctx, ref)
	})
}

// ReadMany returns the existing items among refs, in request order.
func (s *Store) ReadMany(ctx context.Context, refs []domain.ItemRef) ([]domain.WorkItem, error) {
	if len(refs) == 0 {
		return []domain.WorkItem{}, nil
	}
	return retryRead(ctx, s, "read_many", func(ctx context.Context) ([]domain.WorkItem, error) {
		return s.backend.ReadMany(ctx, refs)
	})
}

// Iterate returns one page of items matching filter.
func (s *Store) Iterate(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error) {
	if limit <= 0 {
		return domain.ItemPage{Items: []domain.WorkItem{}}, nil
	}
	return retryRead(ctx, s, "iterate", func(ctx context.Context) (domain.ItemPage, error) {
		return s.backend.Query(ctx, filter, limit, cursor)
	})
}

// GroupStats returns the number of unassigned drafts per group.
func (s *Store) GroupStats(ctx context.Context) ([]domain.GroupStat, error) {
	return retryRead(ctx, s, "group_stats", func(ctx context.Context) ([]domain.GroupStat, error) {
		return s.backend.GroupStats(ctx)
	})
}

// ---------------------------------------------------------------------------
// Writes (never retried)
// ---------------------------------------------------------------------------

// ConditionalReplace persists item if the stored version still equals expected.
func (s *Store) ConditionalReplace(ctx context.Context, item domain.WorkItem, expected domain.Version) (domain.WorkItem, error) {
	return call(ctx, s, "conditional_replace", func(ctx context.Context) (domain.WorkItem, error) {
		return s.backend.ConditionalReplace(ctx, item, expected)
	})
}

// Claim assigns ref to callerID through the selected strategy.
// ok is false when the item is held by someone else.
func (s *Store) Claim(ctx context.Context, ref domain.ItemRef, callerID string) (domain.WorkItem, bool, error) {
	type claimed struct {
		item domain.WorkItem
		ok   bool
	}
	now := s.opts.Now().UTC()
	res, err := call(ctx, s, "claim", func(ctx context.Context) (claimed, error) {
		item, ok, err := s.writer.TryClaim(ctx, ref, callerID, now)
		return claimed{item: item, ok: ok}, err
	})
	return res.item, res.ok, err
}

// Create inserts a new item.
func (s *Store) Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	return call(ctx, s, "create", func(ctx context.Context) (domain.WorkItem, error) {
		return s.backend.Create(ctx, item)
	})
}

// CreateMany inserts items as one unit when the backend supports it, and
// one by one otherwise, stopping at the first failure.
func (s *Store) CreateMany(ctx context.Context, items []domain.WorkItem) error {
	if bc, ok := s.backend.(BatchCreator); ok {
		_, err := call(ctx, s, "create_many", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, bc.CreateMany(ctx, items)
		})
		return err
	}
	for _, item := range items {
		if _, err := s.Create(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks that the backend is reachable. Backends without a health
// probe are assumed reachable.
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.backend.(Pinger)
	if !ok {
		return nil
	}
	_, err := call(ctx, s, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Ping(ctx)
	})
	return err
}

// ---------------------------------------------------------------------------
// Call plumbing
// ---------------------------------------------------------------------------

// call runs fn under the per-call timeout. A timeout that fires while the
// caller's context is still live means the store did not answer in time,
// which is reported as domain.ErrStoreUnavailable.
func call[T any](ctx context.Context, s *Store, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		unavailableTotal.WithLabelValues(op).Inc()
	}
	return v, err
}

func retryRead[T any](ctx context.Context, s *Store, op string, fn func(context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.ReadRetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.opts.ReadAttempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := call(ctx, s, op, fn)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return v, backoff.Permanent(err)
		}
		if attempt < s.opts.ReadAttempts {
			readRetriesTotal.WithLabelValues(op).Inc()
			s.log.DebugContext(ctx, "store read failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return v, err
	}, policy)
}
