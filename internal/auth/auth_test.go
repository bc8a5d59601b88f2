package auth

import (
	"testing"
	"time"

	"gtgbot/internal/eventbus"
	logx "gtgbot/pkg/logx"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	if KindOf(12345) != KindPersonal {
		t.Fatal("positive id must classify as personal")
	}
	if KindOf(-100200300) != KindGroup {
		t.Fatal("negative id must classify as group")
	}
	if KindOf(0) != KindGroup {
		t.Fatal("zero id must classify as group")
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()
	c := NewController([]int64{10, 20}, nil, logx.Nop())

	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{name: "personal allowed", req: Request{ActorID: 10, ChatID: 10}, want: true},
		{name: "personal denied", req: Request{ActorID: 30, ChatID: 30}, want: false},
		{name: "group allowed sender", req: Request{ActorID: 20, ChatID: -500}, want: true},
		{name: "group denied sender", req: Request{ActorID: 30, ChatID: -500}, want: false},
		{name: "group anonymous sender", req: Request{ActorID: 0, ChatID: -500}, want: false},
		{name: "personal anonymous", req: Request{ActorID: 0, ChatID: 0}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Authorize(tt.req); got != tt.want {
				t.Fatalf("Authorize(%+v) = %v, want %v", tt.req, got, tt.want)
			}
		})
	}
}

func TestAuthorizeApplySwapsAllowList(t *testing.T) {
	t.Parallel()
	c := NewController([]int64{10}, nil, logx.Nop())
	if !c.Authorize(Request{ActorID: 10, ChatID: 10}) {
		t.Fatal("expected allow before swap")
	}

	c.Apply([]int64{20})
	if c.Authorize(Request{ActorID: 10, ChatID: 10}) {
		t.Fatal("expected deny after swap")
	}
	if !c.Authorize(Request{ActorID: 20, ChatID: -1}) {
		t.Fatal("expected allow for new list member")
	}
}

func TestAuthorizePublishesAuditEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	c := NewController([]int64{10}, bus, logx.Nop())
	c.Authorize(Request{ActorID: 99, ChatID: -500, Text: "/start"})

	select {
	case ev := <-ch:
		if ev.Type != EventDecision {
			t.Fatalf("event type = %q", ev.Type)
		}
		d, ok := ev.Data.(Decision)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if d.Allowed {
			t.Fatal("decision must be a denial")
		}
		if d.ActorID != 99 || d.ChatID != -500 || d.Kind != KindGroup || d.Request != "/start" {
			t.Fatalf("unexpected decision payload: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("no audit event published")
	}
}
