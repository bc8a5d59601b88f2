package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
telegram:
  token: "123:abc"
webhook:
  host: 127.0.0.1
  port: 8080
store:
  driver: memory
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, minimalYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Webhook.Endpoint != "/webhook" {
		t.Fatalf("endpoint default = %q", cfg.Webhook.Endpoint)
	}
	if cfg.Dispatch.PollInterval.Std() != 5*time.Second {
		t.Fatalf("poll default = %v", cfg.Dispatch.PollInterval.Std())
	}
	if cfg.Dispatch.GroupPacing != cfg.Dispatch.PersonalPacing {
		t.Fatal("group pacing must default to personal pacing")
	}
	if m.Get() != cfg {
		t.Fatal("Get must return the committed snapshot")
	}
}

func TestDecodeDurationsAndPacing(t *testing.T) {
	t.Parallel()
	body := minimalYAML + `
dispatch:
  poll_interval: 2s
  personal_pacing: 250ms
  group_pacing: 3s
`
	m := NewManager(writeConfig(t, body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dispatch.PollInterval.Std() != 2*time.Second {
		t.Fatalf("poll = %v", cfg.Dispatch.PollInterval.Std())
	}
	if cfg.Dispatch.PersonalPacing.Std() != 250*time.Millisecond {
		t.Fatalf("personal pacing = %v", cfg.Dispatch.PersonalPacing.Std())
	}
	if cfg.Dispatch.GroupPacing.Std() != 3*time.Second {
		t.Fatalf("group pacing = %v", cfg.Dispatch.GroupPacing.Std())
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty", body: "", want: "empty"},
		{name: "unknown field", body: minimalYAML + "\nwebhok: {}\n", want: "webhok"},
		{name: "missing token", body: "webhook: {host: x, port: 1}\nstore: {driver: memory}\n", want: "telegram.token"},
		{name: "bad port", body: "telegram: {token: t}\nwebhook: {host: x, port: 99999}\nstore: {driver: memory}\n", want: "webhook.port"},
		{name: "bad driver", body: "telegram: {token: t}\nwebhook: {host: x, port: 1}\nstore: {driver: dynamo}\n", want: "store.driver"},
		{name: "redis without url", body: "telegram: {token: t}\nwebhook: {host: x, port: 1}\nstore: {driver: redis}\n", want: "store.url"},
		{name: "bad duration", body: minimalYAML + "\ndispatch: {poll_interval: soon}\n", want: "duration"},
		{name: "negative acl id", body: minimalYAML + "\nacl: {allow_user_ids: [-5]}\n", want: "allow_user_ids"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decode([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestReloadPublishesNewSnapshot(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, minimalYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	updated := minimalYAML + "\nacl:\n  allow_user_ids: [42]\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload()

	select {
	case cfg := <-ch:
		if len(cfg.ACL.AllowUserIDs) != 1 || cfg.ACL.AllowUserIDs[0] != 42 {
			t.Fatalf("published config = %+v", cfg.ACL)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published after reload")
	}
}

func TestReloadKeepsLastGoodConfigOnBadEdit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, minimalYAML)
	m := NewManager(path)
	good, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("telegram: [broken"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload()

	if m.Get() != good {
		t.Fatal("bad edit must not replace the committed config")
	}
}
