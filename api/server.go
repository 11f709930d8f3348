// Package api serves the assistant over HTTP.
//
// Logical outcomes, success or error, are always HTTP 200 with a
// {"status": ...} body. Non-200 codes are reserved for protocol faults:
// malformed JSON (400), wrong method (405), unknown path (404) and rate
// limiting (429).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nicebartender/deskassist-server/assistant"
	"github.com/nicebartender/deskassist-server/rpc"
	"github.com/nicebartender/deskassist-server/telemetry"
	"github.com/nicebartender/deskassist-server/ws"
)

const DefaultAddress = "127.0.0.1:5000"

type Options struct {
	Addr       string
	Dispatcher *assistant.Dispatcher
	// History, Hub and Metrics are optional. /metrics and /ws are only
	// mounted when Metrics and Hub are set.
	History rpc.HistoryReader
	Hub     *ws.Hub
	Metrics *telemetry.Metrics

	RateLimit         RateLimit
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Now               func() time.Time
}

type Server struct {
	http       *http.Server
	dispatcher *assistant.Dispatcher
	history    rpc.HistoryReader
	metrics    *telemetry.Metrics
	limiter    *limiter
	now        func() time.Time
	opts       Options
}

func NewServer(opts Options) *Server {
	if opts.Dispatcher == nil {
		panic("api.NewServer: dispatcher is nil")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		dispatcher: opts.Dispatcher,
		history:    opts.History,
		metrics:    opts.Metrics,
		limiter:    newLimiter(opts.RateLimit),
		now:        opts.Now,
		opts:       opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/time", s.handleTime)
	mux.HandleFunc("/api/date", s.handleDate)
	mux.HandleFunc("/api/search", s.limited("/api/search", s.handleSearch))
	mux.HandleFunc("/api/open-app", s.limited("/api/open-app", s.handleOpenApp))
	mux.HandleFunc("/api/calculate", s.handleCalculate)
	mux.HandleFunc("/api/command", s.limited("/api/command", s.handleCommand))
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.Hub != nil {
		mux.Handle("/ws", ws.Handler(opts.Hub))
	}

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", ln.Addr().String())
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
