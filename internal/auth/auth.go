// Package auth decides who may administer alert subscriptions.
package auth

import (
	"sync/atomic"

	"gtgbot/internal/eventbus"
	logx "gtgbot/pkg/logx"
)

// Kind classifies a chat by its Telegram id.
type Kind string

const (
	KindPersonal Kind = "personal"
	KindGroup    Kind = "group"
)

// KindOf classifies a chat id: positive ids are personal chats, everything
// else (groups, supergroups, channels) is shared.
func KindOf(chatID int64) Kind {
	if chatID > 0 {
		return KindPersonal
	}
	return KindGroup
}

// EventDecision is published on the bus for every authorization decision,
// allow and deny alike, so decisions stay auditable out-of-band.
const EventDecision = "auth.decision"

// Decision is the audit payload for one authorization check.
type Decision struct {
	Allowed bool
	ActorID int64
	ChatID  int64
	Kind    Kind
	Request string
}

// Request describes one subscribe/unsubscribe attempt to be authorized.
//
// For personal chats the actor is the chat itself; for group chats the
// actor is the sending user, and ActorID 0 means the sender identity was
// unavailable (anonymous admins, channel posts).
type Request struct {
	ActorID int64
	ChatID  int64
	Text    string
}

// Controller is a stateless allow-list check. The list is swapped whole on
// config reload; a check sees either the old or the new list, never a mix.
type Controller struct {
	allowed atomic.Pointer[map[int64]struct{}]
	bus     eventbus.Bus
	log     logx.Logger
}

func NewController(allowUserIDs []int64, bus eventbus.Bus, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{bus: bus, log: log}
	c.Apply(allowUserIDs)
	return c
}

// Apply replaces the allow-list, typically on config reload.
func (c *Controller) Apply(allowUserIDs []int64) {
	m := make(map[int64]struct{}, len(allowUserIDs))
	for _, id := range allowUserIDs {
		m[id] = struct{}{}
	}
	c.allowed.Store(&m)
}

// Authorize reports whether the request's actor may administer the
// subscription of the request's chat. It mutates nothing; the only side
// effects are the audit event and a log line.
func (c *Controller) Authorize(req Request) bool {
	kind := KindOf(req.ChatID)

	// Group requests act on behalf of the chat; the sender is accountable.
	// A missing sender identity is never authorized.
	allowed := req.ActorID != 0 && c.isAllowed(req.ActorID)

	c.audit(allowed, req, kind)
	return allowed
}

func (c *Controller) isAllowed(userID int64) bool {
	m := c.allowed.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[userID]
	return ok
}

func (c *Controller) audit(allowed bool, req Request, kind Kind) {
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{
			Type: EventDecision,
			Data: Decision{
				Allowed: allowed,
				ActorID: req.ActorID,
				ChatID:  req.ChatID,
				Kind:    kind,
				Request: req.Text,
			},
		})
	}

	fields := []logx.Field{
		logx.Int64("actor", req.ActorID),
		logx.Int64("chat", req.ChatID),
		logx.String("kind", string(kind)),
		logx.String("request", req.Text),
	}
	if allowed {
		c.log.Info("authenticated request", fields...)
	} else {
		c.log.Error("unauthenticated request", fields...)
	}
}
