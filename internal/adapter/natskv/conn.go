// Package natskv implements the work-item backend and the assignment index
// on NATS JetStream key-value buckets. KV offers only revision-checked
// writes, so the backend declares the read_validate_write capability.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/heartmarshall/curation-backend/internal/config"
)

// Connect dials NATS and opens (creating if needed) both buckets.
// The returned close function drains the connection.
func Connect(ctx context.Context, cfg config.NATSConfig, log *slog.Logger) (items, index jetstream.KeyValue, closeFn func(), err error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("curation-backend"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("jetstream context: %w", err)
	}

	items, err = EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.ItemsBucket,
		Description: "curation work items",
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	index, err = EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.IndexBucket,
		Description: "per-user assignment index",
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	log.Info("nats kv buckets ready",
		slog.String("items", cfg.ItemsBucket),
		slog.String("index", cfg.IndexBucket),
	)

	return items, index, func() { _ = nc.Drain() }, nil
}

// EnsureBucket creates the bucket, or opens it when another process won the
// race to create it. Transient failures are retried a few times.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := range maxAttempts {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 10 * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("create/open kv bucket %s after %d attempts: %w", cfg.Bucket, maxAttempts, lastErr)
}
