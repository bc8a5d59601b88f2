//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "gtgbot/pkg/logx"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := openSQLite(Config{Path: filepath.Join(t.TempDir(), "relay.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteFIFO(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	if _, err := st.PushBatch(ctx, batchNamed("B1")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := st.PushBatch(ctx, batchNamed("B2")); err != nil {
		t.Fatalf("push: %v", err)
	}

	first, err := st.PopBatch(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got := first.Alerts[0].Labels["alertname"]; got != "B1" {
		t.Fatalf("first pop = %q, want B1", got)
	}
	second, err := st.PopBatch(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got := second.Alerts[0].Labels["alertname"]; got != "B2" {
		t.Fatalf("second pop = %q, want B2", got)
	}
	if _, err := st.PopBatch(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("pop on empty = %v, want ErrEmpty", err)
	}
}

func TestSQLiteSubscribers(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	added, err := st.AddSubscriber(ctx, -100200)
	if err != nil || !added {
		t.Fatalf("add = (%v, %v)", added, err)
	}
	added, err = st.AddSubscriber(ctx, -100200)
	if err != nil || added {
		t.Fatalf("re-add = (%v, %v), want (false, nil)", added, err)
	}

	ok, err := st.IsSubscriber(ctx, -100200)
	if err != nil || !ok {
		t.Fatalf("IsSubscriber = (%v, %v)", ok, err)
	}

	subs, err := st.Subscribers(ctx)
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0] != -100200 {
		t.Fatalf("subscribers = %v", subs)
	}

	removed, err := st.RemoveSubscriber(ctx, -100200)
	if err != nil || !removed {
		t.Fatalf("remove = (%v, %v)", removed, err)
	}
	removed, err = st.RemoveSubscriber(ctx, -100200)
	if err != nil || removed {
		t.Fatalf("remove absent = (%v, %v)", removed, err)
	}
}
