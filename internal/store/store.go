package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gtgbot/internal/alert"
	logx "gtgbot/pkg/logx"
)

// ErrEmpty reports an empty queue on pop. It is distinct from backend
// failures so the dispatcher can tell "nothing to do" from "store down".
var ErrEmpty = errors.New("queue is empty")

// Store is the persistence API shared by ingress, commands and dispatch.
//
// All operations are atomic at this granularity; no cross-operation
// transaction exists (see package doc on lost batches).
type Store interface {
	// PushBatch appends the batch as the most-recent queue entry and
	// returns its entry id.
	PushBatch(ctx context.Context, batch alert.Batch) (int64, error)
	// PopBatch removes and returns the oldest entry. Returns ErrEmpty when
	// the queue holds nothing; any other error is a backend failure.
	// Concurrent pops never observe the same entry.
	PopBatch(ctx context.Context) (alert.Batch, error)
	// QueueDepth reports the number of entries awaiting dispatch.
	QueueDepth(ctx context.Context) (int64, error)

	// AddSubscriber is idempotent; it reports whether the chat became
	// newly subscribed.
	AddSubscriber(ctx context.Context, chatID int64) (bool, error)
	// RemoveSubscriber is idempotent; it reports whether the chat was
	// subscribed before the call.
	RemoveSubscriber(ctx context.Context, chatID int64) (bool, error)
	IsSubscriber(ctx context.Context, chatID int64) (bool, error)
	// Subscribers returns a point-in-time membership snapshot. Callers must
	// not cache it across dispatch cycles.
	Subscribers(ctx context.Context) ([]int64, error)

	// Ping reports whether the backing store is currently reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Config configures the store.
//
// Driver values:
//   - "redis":  shared Redis instance (production; URL required)
//   - "sqlite": SQLite database file (optional build tag; Path required)
//   - "memory": process-local, non-durable (dev/tests)
type Config struct {
	Driver      string
	URL         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store and verifies reachability.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		st  Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "redis":
		st, err = openRedis(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	case "memory":
		st = NewMemory()
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
