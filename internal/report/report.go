// Package report periodically logs relay health (queue depth, subscriber
// count) and refreshes the matching gauges.
package report

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"gtgbot/internal/metrics"
	"gtgbot/internal/store"
	logx "gtgbot/pkg/logx"
)

type Reporter struct {
	store store.Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(st store.Store, log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{store: st, log: log.With(logx.String("comp", "report"))}
}

// Start schedules the report on the given cron spec.
func (r *Reporter) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.emit); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.log.Info("status report scheduled", logx.String("schedule", schedule))
	return nil
}

// Stop cancels the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}

func (r *Reporter) emit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	depth, err := r.store.QueueDepth(ctx)
	if err != nil {
		r.log.Warn("queue depth unavailable", logx.Err(err))
		return
	}
	subs, err := r.store.Subscribers(ctx)
	if err != nil {
		r.log.Warn("subscriber roster unavailable", logx.Err(err))
		return
	}

	metrics.QueueDepth.Set(float64(depth))
	metrics.SubscriberCount.Set(float64(len(subs)))
	r.log.Info("relay status",
		logx.Int64("queue_depth", depth),
		logx.Int("subscribers", len(subs)))
}
