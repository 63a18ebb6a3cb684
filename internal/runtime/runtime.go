// Package runtime owns the lifecycle of the server's backing pieces: the
// durable log, SQLite storage, connection registry, fan-out router, receipt
// tracker, and the persistence workers. Handlers reach everything through a
// Runtime.
package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/config"
	"github.com/Austin-rgb/messages/internal/event"
	"github.com/Austin-rgb/messages/internal/eventlog"
	"github.com/Austin-rgb/messages/internal/fanout"
	"github.com/Austin-rgb/messages/internal/receipts"
	"github.com/Austin-rgb/messages/internal/registry"
	"github.com/Austin-rgb/messages/internal/resolver"
	pebblestore "github.com/Austin-rgb/messages/internal/storage/pebble"
	"github.com/Austin-rgb/messages/internal/store"
	"github.com/Austin-rgb/messages/internal/workers"
)

// Runtime is the assembled server state. Open wires it; Close tears it down
// in reverse order.
type Runtime struct {
	Log *zap.Logger

	DB       *pebblestore.DB
	Store    *store.Store
	Messages *eventlog.Stream
	Receipts *eventlog.Stream

	Registry *registry.Registry
	Resolver *resolver.Resolver
	Router   *fanout.Router
	Tracker  *receipts.Tracker

	workersWG     sync.WaitGroup
	workersCancel context.CancelFunc
}

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "always":
		return pebblestore.FsyncModeAlways
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeInterval
	}
}

// Open builds the runtime from configuration. State lives under
// cfg.DataDir: the event log in log/, SQLite in messages.db.
func Open(cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(cfg.DataDir, "log"),
		Fsync:         fsyncMode(cfg.Log.Fsync),
		FsyncInterval: cfg.FsyncInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open event log db: %w", err)
	}

	messages, err := eventlog.OpenStream(db, eventlog.MessagesStream, cfg.Log.Partitions)
	if err != nil {
		db.Close()
		return nil, err
	}
	receiptStream, err := eventlog.OpenStream(db, eventlog.ReceiptsStream, cfg.Log.Partitions)
	if err != nil {
		db.Close()
		return nil, err
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "messages.db"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := registry.New()
	res := resolver.New(st)
	router := fanout.NewRouter(reg, res, log.Named("fanout"))
	tracker := receipts.NewTracker(st, receiptStream, router, log.Named("receipts"))
	// a successful live push is a delivery; record it through the tracker
	router.SetDeliveryHook(func(ctx context.Context, msg event.Message, user string) {
		if err := tracker.MarkDelivered(ctx, msg, user); err != nil {
			log.Warn("mark delivered from live push",
				zap.String("message", msg.ID), zap.String("user", user), zap.Error(err))
		}
	})

	log.Info("runtime opened",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("partitions", cfg.Log.Partitions),
		zap.String("fsync", cfg.Log.Fsync))

	return &Runtime{
		Log:      log,
		DB:       db,
		Store:    st,
		Messages: messages,
		Receipts: receiptStream,
		Registry: reg,
		Resolver: res,
		Router:   router,
		Tracker:  tracker,
	}, nil
}

// StartWorkers launches the persistence workers. They stop when Close is
// called (or the passed context is cancelled, whichever comes first).
func (r *Runtime) StartWorkers(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.workersCancel = cancel

	mw := workers.NewMessageWorker(r.Messages, r.Store, r.Log.Named("worker.messages"))
	rw := workers.NewReceiptWorker(r.Receipts, r.Store, r.Log.Named("worker.receipts"))

	r.workersWG.Add(2)
	go func() {
		defer r.workersWG.Done()
		if err := mw.Run(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("message worker exited", zap.Error(err))
		}
	}()
	go func() {
		defer r.workersWG.Done()
		if err := rw.Run(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("receipt worker exited", zap.Error(err))
		}
	}()
}

// CheckHealth verifies both storage engines answer.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := r.Store.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	// a read against the log db confirms pebble is open
	if _, err := r.Messages.Read(workers.MessageGroup, 0, 1); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	return nil
}

// Close stops the workers, waits for them to drain, then closes storage.
// Unacked log entries survive on disk and are redelivered on the next start.
func (r *Runtime) Close() error {
	r.Registry.CloseAll()
	if r.workersCancel != nil {
		r.workersCancel()
		r.workersWG.Wait()
	}
	var firstErr error
	if err := r.Store.Close(); err != nil {
		firstErr = err
	}
	if err := r.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
