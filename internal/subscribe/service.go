// Package subscribe implements the subscribe/unsubscribe command surface:
// authorize first, then mutate the subscriber set, then acknowledge.
package subscribe

import (
	"context"

	"gtgbot/internal/auth"
	"gtgbot/internal/eventbus"
	"gtgbot/internal/store"
	logx "gtgbot/pkg/logx"
)

// Acknowledgement texts are verbatim from the previous relay; people have
// keyword notifications set on them.
const (
	ReplyNowSubscribed     = "This chat is now subscribed to Grafana alerts."
	ReplyAlreadySubscribed = "This chat is already subscribed to Grafana alerts."
	ReplyUnsubscribed      = "This chat will no longer receive Grafana alerts."
	ReplyNotSubscribed     = "This chat is not subscribed to Grafana alerts yet."
)

// Event types published on subscription changes.
const (
	EventSubscribed   = "subscribe.added"
	EventUnsubscribed = "subscribe.removed"
)

// Change is the bus payload for a subscription mutation.
type Change struct {
	ChatID int64
	Kind   auth.Kind
}

type Service struct {
	store store.Store
	auth  *auth.Controller
	bus   eventbus.Bus
	log   logx.Logger
}

func New(st store.Store, ac *auth.Controller, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, auth: ac, bus: bus, log: log}
}

// Subscribe adds the chat to the roster after authorization.
//
// The returned reply is empty when the request was denied: an unauthorized
// command gets no acknowledgement at all, only the audit trail. A non-nil
// error means the store was unavailable; the denial itself is never an
// error.
func (s *Service) Subscribe(ctx context.Context, req auth.Request) (string, error) {
	if !s.auth.Authorize(req) {
		return "", nil
	}

	added, err := s.store.AddSubscriber(ctx, req.ChatID)
	if err != nil {
		s.log.Error("subscribe failed", logx.Int64("chat", req.ChatID), logx.Err(err))
		return "", err
	}
	if !added {
		return ReplyAlreadySubscribed, nil
	}

	s.publish(EventSubscribed, req.ChatID)
	s.log.Info("chat subscribed", logx.Int64("chat", req.ChatID))
	return ReplyNowSubscribed, nil
}

// Unsubscribe removes the chat from the roster after authorization. Reply
// semantics mirror Subscribe.
func (s *Service) Unsubscribe(ctx context.Context, req auth.Request) (string, error) {
	if !s.auth.Authorize(req) {
		return "", nil
	}

	removed, err := s.store.RemoveSubscriber(ctx, req.ChatID)
	if err != nil {
		s.log.Error("unsubscribe failed", logx.Int64("chat", req.ChatID), logx.Err(err))
		return "", err
	}
	if !removed {
		return ReplyNotSubscribed, nil
	}

	s.publish(EventUnsubscribed, req.ChatID)
	s.log.Info("chat unsubscribed", logx.Int64("chat", req.ChatID))
	return ReplyUnsubscribed, nil
}

func (s *Service) publish(eventType string, chatID int64) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventType,
		Data: Change{ChatID: chatID, Kind: auth.KindOf(chatID)},
	})
}
