// Package dispatch drains the alert queue and fans batches out to the
// subscribed chats, pacing sends per chat.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gtgbot/internal/alert"
	"gtgbot/internal/auth"
	"gtgbot/internal/metrics"
	"gtgbot/internal/store"
	logx "gtgbot/pkg/logx"
)

// Notifier delivers rendered message text to one chat. Implemented by the
// Telegram adapter; faked in tests.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Config is one cycle's worth of tunables. The dispatcher pulls a fresh
// snapshot at the top of every cycle, so a config reload takes effect on
// the next cycle without disturbing the current one.
type Config struct {
	PollInterval   time.Duration
	PersonalPacing time.Duration
	GroupPacing    time.Duration
}

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type Dispatcher struct {
	store    store.Store
	notifier Notifier
	snapshot func() Config
	log      logx.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st store.Store, n Notifier, snapshot func() Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: st, notifier: n, snapshot: snapshot, log: log}
}

// Start transitions Stopped→Running and begins the poll loop. Starting a
// dispatcher that is not stopped is an error.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateStopped {
		return errors.New("dispatcher is " + d.state.String())
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.state = StateRunning

	go d.run(runCtx, d.done)
	d.log.Info("dispatcher started")
	return nil
}

// Stop interrupts whichever wait is active (poll sleep or pacing) and
// returns once the current cycle has unwound. Idempotent; after Stop
// returns the dispatcher is Stopped and the store may be torn down.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	switch d.state {
	case StateStopped:
		d.mu.Unlock()
		return
	case StateRunning:
		d.state = StateStopping
		d.cancel()
	}
	done := d.done
	d.mu.Unlock()

	<-done

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()
	d.log.Info("dispatcher stopped")
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		cfg := d.snapshot()

		if err := d.store.Ping(ctx); err != nil {
			// Transient outage: contribute nothing this cycle, try again
			// next poll.
			d.log.Warn("store unreachable; skipping cycle", logx.Err(err))
			if !sleep(ctx, cfg.PollInterval) {
				return
			}
			continue
		}

		batch, err := d.store.PopBatch(ctx)
		switch {
		case errors.Is(err, store.ErrEmpty):
			if !sleep(ctx, cfg.PollInterval) {
				return
			}
			continue
		case err != nil:
			d.log.Error("queue pop failed", logx.Err(err))
			if !sleep(ctx, cfg.PollInterval) {
				return
			}
			continue
		}

		d.fanOut(ctx, cfg, batch)
	}
}

// fanOut renders the batch once and sends every message to every chat in
// this cycle's roster. A failed send is logged and skipped; the rest of
// the fan-out proceeds.
func (d *Dispatcher) fanOut(ctx context.Context, cfg Config, batch alert.Batch) {
	msgs := alert.RenderBatch(batch)

	subs, err := d.store.Subscribers(ctx)
	if err != nil {
		// The batch is already popped; its deliveries are lost. Known gap,
		// see the store package doc.
		d.log.Error("subscriber roster unavailable; batch dropped",
			logx.Err(err), logx.Int("alerts", len(msgs)))
		return
	}

	metrics.BatchesDispatched.Inc()
	d.log.Info("dispatching batch",
		logx.Int("alerts", len(msgs)), logx.Int("subscribers", len(subs)))

	for _, chatID := range subs {
		kind := auth.KindOf(chatID)
		lim := pacer(cfg, kind)

		for _, msg := range msgs {
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					// Stop raced the pacing wait and won.
					return
				}
			} else if ctx.Err() != nil {
				return
			}

			if err := d.notifier.Send(ctx, chatID, msg); err != nil {
				metrics.SendFailures.WithLabelValues(string(kind)).Inc()
				d.log.Error("send failed",
					logx.Int64("chat", chatID), logx.Err(err))
				continue
			}
			metrics.SendsTotal.WithLabelValues(string(kind)).Inc()
		}
	}
}

// pacer builds the per-chat pacing limiter for one fan-out sequence. Burst
// 1 lets the first send go immediately and spaces every following send by
// the configured interval.
func pacer(cfg Config, kind auth.Kind) *rate.Limiter {
	iv := cfg.PersonalPacing
	if kind == auth.KindGroup {
		iv = cfg.GroupPacing
	}
	if iv <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(iv), 1)
}

// sleep waits for d or until ctx is cancelled; reports whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
