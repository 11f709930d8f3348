package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicebartender/deskassist-server/api"
	"github.com/nicebartender/deskassist-server/assistant"
	"github.com/nicebartender/deskassist-server/db"
	"github.com/nicebartender/deskassist-server/registry"
	"github.com/nicebartender/deskassist-server/rpc"
	"github.com/nicebartender/deskassist-server/telemetry"
	"github.com/nicebartender/deskassist-server/ws"
)

const serviceName = "deskassist-server"

func main() {
	cfg, err := LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	level, _ := parseLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName)
	if err != nil {
		// Tracing is diagnostics only; keep serving without it.
		slog.Warn("tracing disabled", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "err", err)
		}
	}()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	database.Retention = cfg.JournalRetention

	writer := db.NewWriter(database, 256)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go writer.Run(writerCtx)
	// Runs before database.Close: flush queued entries first.
	defer func() {
		stopWriter()
		<-writer.Done()
	}()

	reg := registry.Default()
	if cfg.RegistryPath != "" {
		if reg, err = registry.Load(cfg.RegistryPath); err != nil {
			return err
		}
	}

	hub := ws.NewHub()
	go hub.Run(ctx)
	metrics := telemetry.NewMetrics(hub.ClientCount)

	dispatcher := assistant.New(assistant.Options{
		Registry:  reg,
		SearchURL: cfg.SearchURL,
		Recorders: []assistant.Recorder{journal(writer), feed(hub), observe(metrics)},
	})
	rpc.NewRouter(hub, dispatcher, database)

	slog.Info("deskassist-server starting",
		"addr", cfg.ListenAddr,
		"registryPlatform", reg.Platform(),
		"canLaunch", dispatcher.CanLaunchApps(),
	)
	return api.NewServer(api.Options{
		Addr:       cfg.ListenAddr,
		Dispatcher: dispatcher,
		History:    database,
		Hub:        hub,
		Metrics:    metrics,
		RateLimit:  cfg.RateLimit(),
	}).Run(ctx)
}

// journal queues every completed action, failure detail included.
func journal(writer *db.Writer) assistant.Recorder {
	return assistant.RecorderFunc(func(ctx context.Context, e assistant.Entry) {
		ok := writer.Enqueue(db.Entry{
			Action:     e.Action,
			Input:      e.Input,
			Status:     e.Status,
			Message:    e.Message,
			Detail:     e.Detail,
			DurationMS: e.DurationMS,
			CreatedAt:  e.CreatedAt,
		})
		if !ok {
			slog.WarnContext(ctx, "journal full, entry dropped", "action", e.Action)
		}
	})
}

// feed pushes completed actions to connected WebSocket clients.
func feed(hub *ws.Hub) assistant.Recorder {
	return assistant.RecorderFunc(func(ctx context.Context, e assistant.Entry) {
		hub.Broadcast(ws.NewEvent("command.completed", e))
	})
}

func observe(metrics *telemetry.Metrics) assistant.Recorder {
	return assistant.RecorderFunc(func(ctx context.Context, e assistant.Entry) {
		metrics.ObserveAction(e.Action, e.Status, time.Duration(e.DurationMS)*time.Millisecond)
	})
}
