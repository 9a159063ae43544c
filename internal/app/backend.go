package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/curation-backend/internal/adapter/memory"
	"github.com/heartmarshall/curation-backend/internal/adapter/natskv"
	"github.com/heartmarshall/curation-backend/internal/adapter/postgres"
	"github.com/heartmarshall/curation-backend/internal/adapter/postgres/assignment"
	"github.com/heartmarshall/curation-backend/internal/adapter/postgres/workitem"
	"github.com/heartmarshall/curation-backend/internal/config"
	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/store"
)

// recordStore is the persistence behind the assignment index.
type recordStore interface {
	Upsert(ctx context.Context, rec domain.AssignmentRecord) error
	ListByUser(ctx context.Context, userID string) ([]domain.AssignmentRecord, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// Backends bundles the selected work-item backend with its index storage.
type Backends struct {
	Items   store.Backend
	Records recordStore
	Close   func()
}

// OpenBackends connects the backend selected by cfg.Store.Backend.
// The caller must invoke Close on shutdown.
func OpenBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backends, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &Backends{
			Items:   workitem.New(pool),
			Records: assignment.New(pool),
			Close:   pool.Close,
		}, nil

	case config.BackendNATSKV:
		items, index, closeFn, err := natskv.Connect(ctx, cfg.NATS, log)
		if err != nil {
			return nil, err
		}
		return &Backends{
			Items:   natskv.NewBackend(items),
			Records: natskv.NewIndexStore(index),
			Close:   closeFn,
		}, nil

	case config.BackendMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return &Backends{
			Items:   memory.New(),
			Records: memory.NewIndexStore(),
			Close:   func() {},
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
