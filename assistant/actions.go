package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nicebartender/deskassist-server/calc"
)

const (
	TimeLayout = "15:04:05"
	DateLayout = "Monday, January 02, 2006"
)

var (
	ErrUnsupportedPlatform = errors.New("application launching is not supported on this platform")
	ErrUnknownApp          = errors.New("application is not registered")
)

// Time returns the wall-clock time as HH:MM:SS.
func (d *Dispatcher) Time() string {
	return d.now().Format(TimeLayout)
}

// Date returns e.g. "Sunday, October 18, 2026".
func (d *Dispatcher) Date() string {
	return d.now().Format(DateLayout)
}

// SearchURL builds the search address for query.
func (d *Dispatcher) SearchURL(query string) string {
	return d.searchURL + url.QueryEscape(query)
}

// Search opens a web search for query in the default browser. Only the
// empty string is rejected; the query is not trimmed.
func (d *Dispatcher) Search(ctx context.Context, query string) Response {
	start := d.now()
	ctx, span := d.startSpan(ctx, ActionSearch, query)
	defer span.End()

	resp, cause := d.search(ctx, query)
	d.finish(ctx, span, ActionSearch, query, start, resp, cause)
	return resp
}

func (d *Dispatcher) search(ctx context.Context, query string) (Response, error) {
	if query == "" {
		return failure("No query provided"), nil
	}
	var cause error
	if err := d.launcher.OpenURL(ctx, d.SearchURL(query)); err != nil {
		cause = fmt.Errorf("open search: %w", err)
	}
	return success("Searching for " + query), cause
}

// OpenApp launches the registered application named app (case-insensitive).
func (d *Dispatcher) OpenApp(ctx context.Context, app string) Response {
	start := d.now()
	ctx, span := d.startSpan(ctx, ActionOpenApp, app)
	defer span.End()

	resp, cause := d.openApp(ctx, strings.ToLower(app))
	d.finish(ctx, span, ActionOpenApp, app, start, resp, cause)
	return resp
}

func (d *Dispatcher) openApp(ctx context.Context, name string) (Response, error) {
	if !d.canLaunch {
		return failure("Cannot open " + name), fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	app, ok := d.registry.App(name)
	if !ok {
		return failure("Cannot open " + name), fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
	if err := d.launcher.Start(ctx, app.Command, app.Args...); err != nil {
		return failure(err.Error()), err
	}
	return success("Opening " + name), nil
}

// Calculate evaluates an arithmetic expression. Every failure reports the
// same message; the cause is kept for diagnostics only.
func (d *Dispatcher) Calculate(ctx context.Context, expression string) Response {
	start := d.now()
	ctx, span := d.startSpan(ctx, ActionCalculate, expression)
	defer span.End()

	resp, cause := d.calculate(expression)
	d.finish(ctx, span, ActionCalculate, expression, start, resp, cause)
	return resp
}

func (d *Dispatcher) calculate(expression string) (Response, error) {
	v, err := calc.Eval(expression)
	if err != nil {
		return failure("Invalid expression"), fmt.Errorf("evaluate %q: %w", expression, err)
	}
	if v == 0 {
		v = 0 // drop the sign of negative zero
	}
	return Response{Status: StatusSuccess, Result: &v}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
