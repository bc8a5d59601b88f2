package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gtgbot/internal/alert"
	"gtgbot/internal/store"
	logx "gtgbot/pkg/logx"
)

type sentMsg struct {
	chatID int64
	text   string
	at     time.Time
}

type fakeNotifier struct {
	mu      sync.Mutex
	sends   []sentMsg
	failFor map[int64]bool
	ch      chan sentMsg
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: map[int64]bool{}, ch: make(chan sentMsg, 64)}
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	fail := f.failFor[chatID]
	m := sentMsg{chatID: chatID, text: text, at: time.Now()}
	if !fail {
		f.sends = append(f.sends, m)
	}
	f.mu.Unlock()
	if fail {
		return errors.New("telegram unavailable")
	}
	f.ch <- m
	return nil
}

func (f *fakeNotifier) sent() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sends...)
}

func waitSends(t *testing.T, f *fakeNotifier, n int) []sentMsg {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-f.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d sends (got %d)", n, i)
		}
	}
	return f.sent()
}

func testBatch(name string, annotations map[string]string) alert.Batch {
	return alert.Batch{Alerts: []alert.Alert{{
		Status:      "firing",
		Labels:      map[string]string{"alertname": name},
		Annotations: annotations,
		StartsAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}}
}

func fixedConfig(cfg Config) func() Config {
	return func() Config { return cfg }
}

func TestDispatchDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.AddSubscriber(ctx, 100)
	_, _ = st.AddSubscriber(ctx, -200)
	_, _ = st.PushBatch(ctx, testBatch("HighCPU", map[string]string{"summary": "cpu too high"}))

	n := newFakeNotifier()
	d := New(st, n, fixedConfig(Config{PollInterval: 10 * time.Millisecond}), logx.Nop())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	sends := waitSends(t, n, 2)
	chats := map[int64]bool{}
	for _, s := range sends {
		chats[s.chatID] = true
		if !strings.Contains(s.text, "[FIRING]: HighCPU") {
			t.Fatalf("message body missing status line: %q", s.text)
		}
		if !strings.Contains(s.text, "[SUMMARY]\ncpu too high") {
			t.Fatalf("message body missing annotation: %q", s.text)
		}
		if strings.Contains(s.text, "[RESOLVED AT]") {
			t.Fatalf("unresolved alert rendered a RESOLVED AT line: %q", s.text)
		}
	}
	if !chats[100] || !chats[-200] {
		t.Fatalf("not every subscriber was served: %v", chats)
	}
}

func TestDispatchFIFOAcrossBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.AddSubscriber(ctx, 100)
	_, _ = st.PushBatch(ctx, testBatch("First", nil))
	_, _ = st.PushBatch(ctx, testBatch("Second", nil))

	n := newFakeNotifier()
	d := New(st, n, fixedConfig(Config{PollInterval: 5 * time.Millisecond}), logx.Nop())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	sends := waitSends(t, n, 2)
	if !strings.Contains(sends[0].text, "First") || !strings.Contains(sends[1].text, "Second") {
		t.Fatalf("batches delivered out of order: %q then %q", sends[0].text, sends[1].text)
	}
}

func TestDispatchPacingPerChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const pacing = 60 * time.Millisecond

	st := store.NewMemory()
	_, _ = st.AddSubscriber(ctx, 100)
	_, _ = st.PushBatch(ctx, alert.Batch{Alerts: []alert.Alert{
		testBatch("A", nil).Alerts[0],
		testBatch("B", nil).Alerts[0],
		testBatch("C", nil).Alerts[0],
	}})

	n := newFakeNotifier()
	d := New(st, n, fixedConfig(Config{
		PollInterval:   5 * time.Millisecond,
		PersonalPacing: pacing,
		GroupPacing:    pacing,
	}), logx.Nop())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	sends := waitSends(t, n, 3)
	for i := 1; i < len(sends); i++ {
		if gap := sends[i].at.Sub(sends[i-1].at); gap < pacing-5*time.Millisecond {
			t.Fatalf("gap between send %d and %d = %v, want >= %v", i-1, i, gap, pacing)
		}
	}
}

func TestDispatchSendFailureDoesNotAbortFanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.AddSubscriber(ctx, 1)
	_, _ = st.AddSubscriber(ctx, 2)
	_, _ = st.AddSubscriber(ctx, 3)
	_, _ = st.PushBatch(ctx, testBatch("X", nil))

	n := newFakeNotifier()
	n.failFor[2] = true
	d := New(st, n, fixedConfig(Config{PollInterval: 5 * time.Millisecond}), logx.Nop())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	sends := waitSends(t, n, 2)
	for _, s := range sends {
		if s.chatID == 2 {
			t.Fatal("failing chat must not appear in successful sends")
		}
	}
}

func TestStopInterruptsPollWait(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	n := newFakeNotifier()
	// Long poll interval: Stop must not wait for it to expire.
	d := New(st, n, fixedConfig(Config{PollInterval: time.Minute}), logx.Nop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the loop reach its empty-queue sleep.
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the poll wait")
	}
	if got := d.State(); got != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	d := New(st, newFakeNotifier(), fixedConfig(Config{PollInterval: 10 * time.Millisecond}), logx.Nop())

	d.Stop() // never started: no-op
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
	d.Stop()
	if got := d.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}

	// A stopped dispatcher can start again.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}

func TestStartWhileRunningFails(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	d := New(st, newFakeNotifier(), fixedConfig(Config{PollInterval: 10 * time.Millisecond}), logx.Nop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail while running")
	}
}

func TestSubscriberAddedMidRunReceivesNextBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.AddSubscriber(ctx, 1)
	_, _ = st.PushBatch(ctx, testBatch("First", nil))

	n := newFakeNotifier()
	d := New(st, n, fixedConfig(Config{PollInterval: 5 * time.Millisecond}), logx.Nop())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	waitSends(t, n, 1)

	_, _ = st.AddSubscriber(ctx, 2)
	_, _ = st.PushBatch(ctx, testBatch("Second", nil))

	sends := waitSends(t, n, 2)
	var late bool
	for _, s := range sends {
		if s.chatID == 2 && strings.Contains(s.text, "Second") {
			late = true
		}
	}
	if !late {
		t.Fatal("subscriber added mid-run did not receive the next batch")
	}
}
