// Package app wires the relay together: config, logging, store, auth,
// transport, ingress, dispatcher and the operational extras.
package app

import (
	"context"
	"fmt"
	"sync"

	"gtgbot/internal/auth"
	"gtgbot/internal/config"
	"gtgbot/internal/dispatch"
	"gtgbot/internal/eventbus"
	"gtgbot/internal/ops"
	"gtgbot/internal/report"
	"gtgbot/internal/store"
	"gtgbot/internal/subscribe"
	"gtgbot/internal/transport/telegram"
	"gtgbot/internal/webhook"
	logx "gtgbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	st      store.Store
	ac      *auth.Controller
	adapter *telegram.Adapter
	disp    *dispatch.Dispatcher
	web     *webhook.Server
	ops     *ops.Server
	rep     *report.Reporter

	stopWatch context.CancelFunc
	watchWG   sync.WaitGroup
	cfgCh     chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		cfgm: cfgm,
		logs: logs,
		log:  log.With(logx.String("comp", "app")),
		bus:  eventbus.New(),
	}, nil
}

// Bus exposes the audit/event side channel.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Start brings every component up. Any failure here is fatal to the
// process; there is no degraded startup mode.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		URL:         cfg.Store.URL,
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout.Std(),
	}, a.log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.st = st

	a.ac = auth.NewController(cfg.ACL.AllowUserIDs, a.bus,
		a.log.With(logx.String("comp", "auth")))
	subs := subscribe.New(a.st, a.ac, a.bus,
		a.log.With(logx.String("comp", "subscribe")))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
	}, subs, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = adapter

	a.web = webhook.NewServer(webhook.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Webhook.Host, cfg.Webhook.Port),
		Endpoint: cfg.Webhook.Endpoint,
	}, a.st, a.log.With(logx.String("comp", "webhook")))

	a.disp = dispatch.New(a.st, a.adapter, a.dispatchConfig,
		a.log.With(logx.String("comp", "dispatch")))

	a.ops = ops.NewServer(a.log)
	a.rep = report.New(a.st, a.log)

	if err := a.web.Start(ctx); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if err := a.adapter.Start(ctx); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if err := a.disp.Start(ctx); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	a.ops.Apply(ctx, ops.Config{Enabled: cfg.Ops.Enabled, Addr: cfg.Ops.Addr})
	if cfg.Report.Enabled {
		if err := a.rep.Start(cfg.Report.Schedule); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	a.startConfigWatch(ctx)
	a.log.Info("relay started")
	return nil
}

func (a *App) startConfigWatch(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	a.cfgCh = a.cfgm.Subscribe(1)

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(watchCtx, cfg)
			}
		}
	}()
}

// applyConfig re-applies the reloadable parts of a fresh snapshot. The
// store driver and the listen address are fixed for the process lifetime;
// changing those needs a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.ac.Apply(cfg.ACL.AllowUserIDs)
	a.web.Apply(webhook.Config{Endpoint: cfg.Webhook.Endpoint})
	a.ops.Apply(ctx, ops.Config{Enabled: cfg.Ops.Enabled, Addr: cfg.Ops.Addr})
	// Dispatcher intervals are pulled per cycle via dispatchConfig; nothing
	// to push there.
	a.log.Info("config applied")
}

func (a *App) dispatchConfig() dispatch.Config {
	cfg := a.cfgm.Get()
	return dispatch.Config{
		PollInterval:   cfg.Dispatch.PollInterval.Std(),
		PersonalPacing: cfg.Dispatch.PersonalPacing.Std(),
		GroupPacing:    cfg.Dispatch.GroupPacing.Std(),
	}
}

// Stop tears the relay down in reverse dependency order: stop producing
// and dispatching first, close the store last.
func (a *App) Stop(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
		a.watchWG.Wait()
		a.cfgm.Unsubscribe(a.cfgCh)
	}

	if a.disp != nil {
		a.disp.Stop()
	}
	if a.web != nil {
		a.web.Stop(ctx)
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	if a.rep != nil {
		a.rep.Stop()
	}
	if a.ops != nil {
		a.ops.Stop(ctx)
	}
	if a.st != nil {
		_ = a.st.Close()
	}

	a.log.Info("relay stopped")
	_ = a.logs.Close()
	return nil
}
