package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	ACL      ACLConfig      `yaml:"acl"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Store    StoreConfig    `yaml:"store"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Ops      OpsConfig      `yaml:"ops"`
	Report   ReportConfig   `yaml:"report"`
}

type TelegramConfig struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

// ACLConfig is the read-only allow-list of Telegram user ids permitted to
// subscribe/unsubscribe chats. It gates administration only; any chat can
// be a delivery target once an allowed user subscribes it.
type ACLConfig struct {
	AllowUserIDs []int64 `yaml:"allow_user_ids"`
}

type WebhookConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Endpoint string `yaml:"endpoint"`
}

// StoreConfig selects the shared durable store backing the alert queue and
// the subscriber set.
//
// Driver values:
//   - "redis":  URL is a redis connection URL (redis://host:port/db)
//   - "sqlite": Path is the database file
//   - "memory": process-local, for development and tests
type StoreConfig struct {
	Driver      string   `yaml:"driver"`
	URL         string   `yaml:"url,omitempty"`
	Path        string   `yaml:"path,omitempty"`
	BusyTimeout Duration `yaml:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls the queue poll loop and per-chat send pacing.
// GroupPacing falls back to PersonalPacing when omitted.
type DispatchConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`
	PersonalPacing Duration `yaml:"personal_pacing"`
	GroupPacing    Duration `yaml:"group_pacing"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OpsConfig controls the optional operational HTTP server (pprof + metrics).
// Prefer binding to localhost.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"` // default: "127.0.0.1:6060"
}

// ReportConfig controls the periodic status report (queue depth and
// subscriber count logged on a cron schedule).
type ReportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule,omitempty"` // cron spec, default hourly
}

// Duration is a yaml-friendly wrapper accepting Go duration strings
// ("500ms", "10s", "1m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q must be >= 0", raw)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Or returns the duration, or def when unset.
func (d Duration) Or(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}

const (
	defaultPollInterval   = 5 * time.Second
	defaultPersonalPacing = 1 * time.Second
	defaultReportSchedule = "0 * * * *"
	defaultOpsAddr        = "127.0.0.1:6060"
	defaultEndpoint       = "/webhook"
)

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Webhook.Endpoint) == "" {
		c.Webhook.Endpoint = defaultEndpoint
	}
	if c.Dispatch.PollInterval <= 0 {
		c.Dispatch.PollInterval = Duration(defaultPollInterval)
	}
	if c.Dispatch.PersonalPacing <= 0 {
		c.Dispatch.PersonalPacing = Duration(defaultPersonalPacing)
	}
	if c.Dispatch.GroupPacing <= 0 {
		c.Dispatch.GroupPacing = c.Dispatch.PersonalPacing
	}
	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = defaultOpsAddr
	}
	if strings.TrimSpace(c.Report.Schedule) == "" {
		c.Report.Schedule = defaultReportSchedule
	}
}

// Validate rejects configs that cannot produce a working process.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if !strings.HasPrefix(c.Webhook.Endpoint, "/") {
		return fmt.Errorf("webhook.endpoint %q must start with /", c.Webhook.Endpoint)
	}
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port %d out of range", c.Webhook.Port)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "redis":
		if strings.TrimSpace(c.Store.URL) == "" {
			return errors.New("store.url is required for the redis driver")
		}
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	for _, id := range c.ACL.AllowUserIDs {
		if id <= 0 {
			return fmt.Errorf("acl.allow_user_ids: %d is not a valid telegram user id", id)
		}
	}
	return nil
}
