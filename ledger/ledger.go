package ledger

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/warp/arena-ledger/metrics"
)

// DefaultMaxRetries bounds how often an operation is re-run after a store
// reports a concurrent modification.
const DefaultMaxRetries = 3

// =============================================================================
// OPTIONS
// =============================================================================

type Option func(*core)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *core) { c.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(c *core) { c.logger = l }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(c *core) { c.metrics = m }
}

// WithMaxRetries sets the retry bound. Negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(c *core) { c.maxRetries = max(n, 0) }
}

// WithLockManager shares a lock manager between several engines over the
// same store.
func WithLockManager(l *LockManager) Option {
	return func(c *core) { c.locks = l }
}

// =============================================================================
// CORE - Shared plumbing for PlayerLedger and Engine
// =============================================================================

type core struct {
	store      TxStore
	locks      *LockManager
	now        func() time.Time
	logger     *log.Logger
	metrics    metrics.Metrics
	maxRetries int
}

func newCore(store TxStore, opts ...Option) *core {
	c := &core{
		store:      store,
		now:        time.Now,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = NewLockManager()
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNoop()
	}
	return c
}

// run executes fn, re-running it while the store reports a concurrent
// modification, and records duration and failure kind under op.
func (c *core) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if !IsRetryable(err) || attempt >= c.maxRetries {
			break
		}
		c.logger.Warn("concurrent modification, retrying", "operation", op, "attempt", attempt+1)
	}

	c.metrics.ObserveOperation(op, time.Since(start))
	if err != nil {
		kind := KindOf(err)
		c.metrics.IncOperationErrors(op, string(kind))
		if kind == KindInternal {
			c.logger.Error("operation failed", "operation", op, "err", err)
		}
	}
	return err
}

// locked acquires keys, then runs fn inside a store transaction. ctx may
// cancel the wait for locks; once the transaction starts it runs to the end.
func (c *core) locked(ctx context.Context, keys []string, fn func(Store) error) error {
	release, err := c.locks.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return c.store.WithTx(context.WithoutCancel(ctx), fn)
}
