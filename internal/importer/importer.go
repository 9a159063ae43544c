// Package importer bulk-loads draft work items from JSON lines.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

const maxLineBytes = 4 << 20

type itemCreator interface {
	Create(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error)
	CreateMany(ctx context.Context, items []domain.WorkItem) error
}

// Line is one input record.
type Line struct {
	GroupKey   string             `json:"group_key"`
	ID         string             `json:"id"`
	Text       string             `json:"text"`
	Labels     []string           `json:"labels"`
	References []domain.Reference `json:"references"`
}

// Result summarises an import run.
type Result struct {
	Read       int
	Created    int
	Duplicates int
}

// Importer writes batches of drafts through the store.
type Importer struct {
	store     itemCreator
	batchSize int
	now       func() time.Time
	log       *slog.Logger
}

// New creates an Importer. batchSize below 1 means 100.
func New(log *slog.Logger, store itemCreator, batchSize int) *Importer {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Importer{
		store:     store,
		batchSize: batchSize,
		now:       time.Now,
		log:       log.With("component", "importer"),
	}
}

// Import reads r to EOF. A malformed line aborts the run with the line
// number; items already written stay written.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	batch := make([]domain.WorkItem, 0, im.batchSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		item, err := im.parse(raw)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", lineNo, err)
		}
		res.Read++
		batch = append(batch, item)

		if len(batch) == im.batchSize {
			if err := im.flush(ctx, batch, &res); err != nil {
				return res, err
			}
			batch = batch[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}

	if len(batch) > 0 {
		if err := im.flush(ctx, batch, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (im *Importer) parse(raw []byte) (domain.WorkItem, error) {
	var l Line
	if err := json.Unmarshal(raw, &l); err != nil {
		return domain.WorkItem{}, domain.NewValidationError("line", err.Error())
	}
	ref := domain.ItemRef{GroupKey: l.GroupKey, ID: l.ID}
	if err := ref.Validate(); err != nil {
		return domain.WorkItem{}, err
	}
	return domain.NewDraft(ref, l.Text, l.Labels, l.References, im.now()), nil
}

// flush writes a batch at once and, when it collides with existing items,
// retries one by one so that only the duplicates are skipped.
func (im *Importer) flush(ctx context.Context, batch []domain.WorkItem, res *Result) error {
	err := im.store.CreateMany(ctx, batch)
	if err == nil {
		res.Created += len(batch)
		return nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("create batch: %w", err)
	}

	for _, item := range batch {
		_, err := im.store.Create(ctx, item)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, domain.ErrConflict):
			res.Duplicates++
			im.log.Debug("duplicate skipped", slog.String("item", item.Ref().String()))
		default:
			return fmt.Errorf("create %s: %w", item.Ref(), err)
		}
	}
	return nil
}
