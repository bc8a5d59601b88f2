// Package telegram owns the bot connection: it delivers rendered alert
// messages (the dispatcher's Notifier) and handles the /start and /stop
// subscription commands.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"gtgbot/internal/auth"
	"gtgbot/internal/subscribe"
	logx "gtgbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	bot  *tele.Bot
	subs *subscribe.Service
	log  logx.Logger

	runMu   sync.Mutex
	running bool
	stopped chan struct{}
}

func New(cfg Config, subs *subscribe.Service, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{bot: b, subs: subs, log: log}
	a.registerHandlers()
	a.log.Info("fetched bot username", logx.String("username", b.Me.Username))
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		return a.handleCommand(c, a.subs.Subscribe)
	})
	a.bot.Handle("/stop", func(c tele.Context) error {
		return a.handleCommand(c, a.subs.Unsubscribe)
	})
}

type commandFn func(ctx context.Context, req auth.Request) (string, error)

func (a *Adapter) handleCommand(c tele.Context, fn commandFn) error {
	chat := c.Chat()
	msg := c.Message()
	if chat == nil || msg == nil {
		return nil
	}

	req := auth.Request{
		ActorID: actorID(chat.ID, c.Sender()),
		ChatID:  chat.ID,
		Text:    msg.Text,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply, err := fn(ctx, req)
	if err != nil {
		// Store outage: the user gets silence now and can retry; the
		// relay must not crash over it.
		return nil
	}
	if reply == "" {
		// Denied. The audit trail already has it.
		return nil
	}

	if auth.KindOf(chat.ID) == auth.KindGroup {
		// Shared chats can be busy; anchor the acknowledgement to the
		// command that triggered it.
		return c.Reply(reply)
	}
	return c.Send(reply)
}

// actorID resolves who is accountable for a command: the chat itself in a
// personal chat, the sending user in a shared one. Zero means the sender
// identity is unavailable (anonymous admin, channel post) and will never
// authorize.
func actorID(chatID int64, sender *tele.User) int64 {
	if auth.KindOf(chatID) == auth.KindPersonal {
		return chatID
	}
	if sender == nil {
		return 0
	}
	return sender.ID
}

// Send implements the dispatcher's Notifier.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

// Start begins long polling in the background; it returns immediately.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.stopped = make(chan struct{})

	go func() {
		defer close(a.stopped)
		a.log.Info("starting bot")
		a.bot.Start()
	}()
	return nil
}

// Stop halts polling and waits for the poll loop to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	stopped := a.stopped
	a.runMu.Unlock()

	a.bot.Stop()
	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.log.Info("bot stopped")
	return nil
}
