// Package webhook is the HTTP ingress for alert payloads: one configured
// endpoint, strict method/path checks, validation, then a queue push.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gtgbot/internal/alert"
	"gtgbot/internal/metrics"
	"gtgbot/internal/store"
	logx "gtgbot/pkg/logx"
)

// maxBody caps payload reads; the monitoring tool's batches are small and
// anything larger is abuse.
const maxBody = 1 << 20

type Config struct {
	Addr     string
	Endpoint string
}

type Server struct {
	store store.Store
	log   logx.Logger

	endpoint atomic.Value // string

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewServer(cfg Config, st store.Store, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{store: st, log: log, addr: cfg.Addr}
	s.endpoint.Store(cfg.Endpoint)
	return s
}

// Apply updates the accepted endpoint path, typically on config reload.
func (s *Server) Apply(cfg Config) {
	s.endpoint.Store(cfg.Endpoint)
}

// Handler returns the ingress handler. Split out so tests can drive it
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Start binds the listener and serves in the background. A bind failure is
// returned to the caller: ingress being down at boot is fatal, unlike
// steady-state hiccups.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("webhook server error", logx.Err(err))
		}
	}()
	s.log.Info("webhook server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address (useful when the config port is 0).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	s.log.Info("webhook server stopped")
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	client := r.RemoteAddr
	log := s.log.With(logx.String("client", client))

	if r.Method != http.MethodPost {
		metrics.IngestRejected.WithLabelValues("method").Inc()
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed."})
		log.Error("request used disallowed method", logx.String("method", r.Method))
		return
	}

	endpoint, _ := s.endpoint.Load().(string)
	if r.URL.Path != endpoint {
		metrics.IngestRejected.WithLabelValues("endpoint").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Wrong endpoint."})
		log.Error("request to wrong endpoint", logx.String("path", r.URL.Path))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		metrics.IngestRejected.WithLabelValues("malformed").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Valid JSON expected."})
		log.Error("request body unreadable", logx.Err(err))
		return
	}

	batch, err := alert.Validate(body)
	if err != nil {
		var se *alert.SchemaError
		switch {
		case errors.As(err, &se):
			metrics.IngestRejected.WithLabelValues("schema").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Invalid JSON schema. " + se.Detail + ".",
			})
			log.Error("payload failed schema check", logx.String("detail", se.Detail))
		default:
			metrics.IngestRejected.WithLabelValues("malformed").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Valid JSON expected."})
			log.Error("payload is not valid JSON")
		}
		return
	}

	id, err := s.store.PushBatch(r.Context(), batch)
	if err != nil {
		metrics.QueuePushFailures.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "could not add alerts to queue.",
		})
		log.Error("queue push failed", logx.Err(err))
		return
	}

	metrics.BatchesIngested.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok."})
	log.Info("accepted alert batch",
		logx.Int64("entry", id), logx.Int("alerts", len(batch.Alerts)))
}

func writeJSON(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
