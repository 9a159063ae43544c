package assignment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

type claimStore interface {
	Claim(ctx context.Context, ref domain.ItemRef, callerID string) (domain.WorkItem, bool, error)
}

// Engine performs single claims through the store's conditional writer.
// It holds no locks and never retries: a lost claim is a normal outcome.
type Engine struct {
	store claimStore
	log   *slog.Logger
}

// NewEngine creates a claim engine.
func NewEngine(log *slog.Logger, store claimStore) *Engine {
	return &Engine{
		store: store,
		log:   log.With("service", "claim"),
	}
}

// Claim assigns ref to userID if it is unassigned, already held by userID,
// or no longer a draft. The claimed item is reset to draft.
func (e *Engine) Claim(ctx context.Context, ref domain.ItemRef, userID string) (domain.ClaimResult, error) {
	item, ok, err := e.store.Claim(ctx, ref, userID)
	if err != nil {
		claimsTotal.WithLabelValues("error").Inc()
		return domain.ClaimResult{}, fmt.Errorf("claim %s: %w", ref, err)
	}
	if !ok {
		claimsTotal.WithLabelValues("lost").Inc()
		e.log.DebugContext(ctx, "claim lost",
			slog.String("item", ref.String()),
			slog.String("user_id", userID),
		)
		return domain.ClaimResult{}, nil
	}

	claimsTotal.WithLabelValues("won").Inc()
	return domain.ClaimResult{Success: true, Item: &item}, nil
}
