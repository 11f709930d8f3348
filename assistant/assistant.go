// Package assistant maps inbound requests to one of the assistant actions
// and returns a uniform status/message/result response.
//
// Failures never escape as Go errors. Validation and execution failures both
// become a Response with StatusError; the underlying error, when there is
// one, is kept for diagnostics on the trace span, in the log and in the
// Entry handed to every Recorder.
package assistant

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nicebartender/deskassist-server/launch"
	"github.com/nicebartender/deskassist-server/registry"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	ActionSearch    = "search"
	ActionOpenApp   = "open-app"
	ActionCalculate = "calculate"
	ActionCommand   = "command"
)

const DefaultSearchURL = "https://www.google.com/search?q="

const tracerName = "github.com/nicebartender/deskassist-server/assistant"

// Response is the wire shape shared by every action.
type Response struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Result  *float64 `json:"result,omitempty"`
	// Action names what a spoken command resolved to.
	Action string `json:"action,omitempty"`
}

func (r Response) OK() bool { return r.Status == StatusSuccess }

func success(message string) Response {
	return Response{Status: StatusSuccess, Message: message}
}

func failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// Entry describes one dispatched action after it completed.
type Entry struct {
	ID         int64     `json:"id,omitempty"`
	Action     string    `json:"action"`
	Input      string    `json:"input"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Detail     string    `json:"-"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder observes completed actions. Implementations must not block.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Entry)

func (f RecorderFunc) Record(ctx context.Context, e Entry) { f(ctx, e) }

type Options struct {
	Registry *registry.Registry
	Launcher launch.Launcher
	// GOOS is the host platform checked against the registry. Empty means
	// runtime.GOOS.
	GOOS string
	// SearchURL is the prefix the escaped query is appended to.
	SearchURL      string
	Now            func() time.Time
	TracerProvider trace.TracerProvider
	Recorders      []Recorder
}

// Dispatcher is safe for concurrent use; it holds no mutable state.
type Dispatcher struct {
	registry  *registry.Registry
	launcher  launch.Launcher
	canLaunch bool
	searchURL string
	now       func() time.Time
	tracer    trace.Tracer
	recorders []Recorder
}

func New(opts Options) *Dispatcher {
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.Launcher == nil {
		opts.Launcher = launch.NewExec()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	d := &Dispatcher{
		registry:  opts.Registry,
		launcher:  opts.Launcher,
		canLaunch: opts.Registry.SupportsPlatform(opts.GOOS),
		searchURL: opts.SearchURL,
		now:       opts.Now,
		tracer:    opts.TracerProvider.Tracer(tracerName),
		recorders: append([]Recorder(nil), opts.Recorders...),
	}
	if !d.canLaunch {
		slog.Info("application launching disabled on this host",
			"host", opts.GOOS, "registryPlatform", opts.Registry.Platform())
	}
	return d
}

// CanLaunchApps reports the capability check made at construction.
func (d *Dispatcher) CanLaunchApps() bool { return d.canLaunch }

func (d *Dispatcher) startSpan(ctx context.Context, action, input string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "assistant."+action, trace.WithAttributes(
		attribute.String("assistant.action", action),
		attribute.Int("assistant.input_length", len(input)),
	))
}

// finish closes out an action: it annotates the span, logs the swallowed
// error if any, and notifies recorders.
func (d *Dispatcher) finish(ctx context.Context, span trace.Span, action, input string, start time.Time, resp Response, cause error) {
	span.SetAttributes(attribute.String("assistant.status", resp.Status))
	if resp.Action != "" {
		span.SetAttributes(attribute.String("assistant.command", resp.Action))
	}

	entry := Entry{
		Action:     action,
		Input:      input,
		Status:     resp.Status,
		Message:    resp.Message,
		DurationMS: d.now().Sub(start).Milliseconds(),
		CreatedAt:  start,
	}
	if resp.Result != nil && entry.Message == "" {
		entry.Message = formatNumber(*resp.Result)
	}

	switch {
	case cause != nil:
		entry.Detail = cause.Error()
		span.RecordError(cause)
		if resp.OK() {
			// Fire-and-forget launch failed after the request was accepted.
			slog.WarnContext(ctx, "action side effect failed", "action", action, "err", cause)
		} else {
			span.SetStatus(codes.Error, resp.Message)
			slog.InfoContext(ctx, "action failed", "action", action, "message", resp.Message, "err", cause)
		}
	case !resp.OK():
		span.SetStatus(codes.Error, resp.Message)
	}

	for _, r := range d.recorders {
		r.Record(ctx, entry)
	}
}
