// Package api provides the HTTP server for the Smart Inclusion service.
//
// It exposes the USSD gateway callback, the operator dashboard with its
// broadcast form, JSON record listings, health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SmartInclusion/SmartInclusion/internal/broadcast"
	"github.com/SmartInclusion/SmartInclusion/internal/messaging"
	"github.com/SmartInclusion/SmartInclusion/internal/ratelimit"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
	"github.com/SmartInclusion/SmartInclusion/internal/twiliosms"
	"github.com/SmartInclusion/SmartInclusion/internal/ussd"
)

const (
	// DefaultServerAddr is used when no address option is given.
	DefaultServerAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRateLimitIdleTTL is how long an idle client bucket is kept.
	DefaultRateLimitIdleTTL = 10 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr               string
	OutboxPollInterval time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	Registry           *prometheus.Registry
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithOutboxPollInterval sets how often queued broadcast messages are drained.
func WithOutboxPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.OutboxPollInterval = d }
}

// WithRateLimit limits admin endpoints to rps requests per second per client
// IP with the given burst. Without it admin endpoints are unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Opts) {
		o.RateLimitRPS = rps
		o.RateLimitBurst = burst
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *Opts) { o.Registry = reg }
}

// Server wires the store, the USSD dispatcher and the broadcaster to HTTP.
type Server struct {
	st          store.Store
	msgService  messaging.Service
	dispatcher  *ussd.Dispatcher
	broadcaster *broadcast.Broadcaster
	sender      *store.OutboxSender
	limiter     *ratelimit.MapLimiter
	metrics     *metrics
	registry    *prometheus.Registry
	addr        string
	now         func() time.Time
}

// NewServer creates a Server. msgService delivers broadcast messages.
func NewServer(st store.Store, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		st:          st,
		msgService:  msgService,
		dispatcher:  ussd.NewDispatcher(ussd.NewMachine(store.NewSink(st))),
		broadcaster: broadcast.NewBroadcaster(st),
		limiter:     ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, DefaultRateLimitIdleTTL),
		registry:    cfg.Registry,
		addr:        cfg.Addr,
		now:         time.Now,
	}
	s.metrics = newMetrics(cfg.Registry)
	s.sender = store.NewOutboxSender(st, s.metrics.countSends(broadcast.SendFunc(msgService)), cfg.OutboxPollInterval)
	slog.Debug("Server.NewServer: server created", "addr", s.addr, "rate_limited", s.limiter != nil)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.metrics.instrument("/", http.HandlerFunc(s.indexHandler)))
	mux.Handle("/ussd", s.metrics.instrument("/ussd", http.HandlerFunc(s.ussdHandler)))
	mux.Handle("/health", s.metrics.instrument("/health", http.HandlerFunc(s.healthHandler)))
	mux.Handle("/metrics", s.metrics.handler(s.registry))

	admin := map[string]http.HandlerFunc{
		"/dashboard":         s.dashboardHandler,
		"/broadcast":         s.broadcastHandler,
		"/farmers":           s.farmersHandler,
		"/reports/crops":     s.cropReportsHandler,
		"/reports/livestock": s.livestockReportsHandler,
	}
	for route, h := range admin {
		mux.Handle(route, s.metrics.instrument(route, s.rateLimit(h)))
	}
	return mux
}

// Serve runs the HTTP server and the outbox sender until ctx is done, then
// shuts both down.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer s.msgService.Stop()

	if err := s.sender.RecoverStaleMessages(); err != nil {
		slog.Warn("Server.Serve: stale outbox recovery failed", "error", err)
	}

	senderCtx, stopSender := context.WithCancel(ctx)
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		s.sender.Run(senderCtx)
	}()
	defer func() {
		stopSender()
		<-senderDone
	}()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Run builds the store and messaging service from module options and serves
// until SIGINT or SIGTERM. Without SMS options broadcasts are only logged.
func Run(storeOpts []store.Option, smsOpts []twiliosms.Option, apiOpts []Option) error {
	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var msgService messaging.Service
	if len(smsOpts) > 0 {
		client, err := twiliosms.NewClient(smsOpts...)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		msgService = messaging.NewTwilioService(client)
		slog.Info("Run: broadcasts delivered over Twilio SMS")
	} else {
		msgService = messaging.NewLogService()
		slog.Info("Run: no SMS provider configured, broadcasts are logged only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewServer(st, msgService, apiOpts...).Serve(ctx)
}
