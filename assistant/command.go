package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kinds a spoken command can resolve to, reported in Response.Action.
const (
	KindTime      = "time"
	KindDate      = "date"
	KindSearch    = "search"
	KindOpen      = "open"
	KindCalculate = "calculate"
	KindWeather   = "weather"
	KindHelp      = "help"
	KindGreeting  = "greeting"
	KindUnknown   = "unknown"
)

const (
	spokenTimeLayout = "03:04 PM"
	spokenDateLayout = "Monday, January 2, 2006"

	helpText = "I can tell you the time and date, search the web, open applications like YouTube or Google, perform calculations, and much more. Just ask me!"
)

var errNoCommand = errors.New("empty command")

// spokenOperators are rewritten in order, longest phrases first.
var spokenOperators = []struct{ phrase, op string }{
	{"to the power of", "**"},
	{"multiplied by", "*"},
	{"divided by", "/"},
	{"plus", "+"},
	{"minus", "-"},
	{"times", "*"},
}

// Command interprets free-form text the way the voice frontend phrases it,
// e.g. "what time is it", "search for cats", "open youtube",
// "what is 2 plus 2". Keywords are matched as whole words.
func (d *Dispatcher) Command(ctx context.Context, text string) Response {
	start := d.now()
	ctx, span := d.startSpan(ctx, ActionCommand, text)
	defer span.End()

	resp, cause := d.command(ctx, text)
	d.finish(ctx, span, ActionCommand, text, start, resp, cause)
	return resp
}

func (d *Dispatcher) command(ctx context.Context, text string) (Response, error) {
	words := normalizeWords(text)
	if words == "" {
		return withKind(failure("No command provided"), KindUnknown), errNoCommand
	}

	switch {
	case hasPhrase(words, "time"):
		return withKind(success("The current time is "+d.now().Format(spokenTimeLayout)), KindTime), nil

	case hasPhrase(words, "date"):
		return withKind(success("Today is "+d.now().Format(spokenDateLayout)), KindDate), nil

	case hasPhrase(words, "search"):
		query := removePhrase(removePhrase(words, "search for"), "search")
		if query == "" {
			return withKind(failure("What would you like me to search for?"), KindSearch), nil
		}
		resp, cause := d.search(ctx, query)
		return withKind(resp, KindSearch), cause

	case hasPhrase(words, "open"):
		resp, cause := d.openTarget(ctx, removePhrase(words, "open"))
		return withKind(resp, KindOpen), cause

	case hasPhrase(words, "weather"):
		var cause error
		if err := d.launcher.OpenURL(ctx, d.registry.WeatherURL()); err != nil {
			cause = fmt.Errorf("open weather: %w", err)
		}
		return withKind(success("Opening weather information"), KindWeather), cause

	case hasPhrase(words, "calculate") || hasPhrase(words, "what is"):
		expr := spokenExpression(removePhrase(removePhrase(words, "calculate"), "what is"))
		resp, cause := d.calculate(expr)
		if !resp.OK() {
			return withKind(failure("I could not calculate that expression"), KindCalculate), cause
		}
		return withKind(success("The result is "+formatNumber(*resp.Result)), KindCalculate), nil

	case hasPhrase(words, "help") || hasPhrase(words, "what can you do"):
		return withKind(success(helpText), KindHelp), nil

	case hasPhrase(words, "hello") || hasPhrase(words, "hi"):
		return withKind(success("Hello! How can I assist you today?"), KindGreeting), nil
	}

	return withKind(failure("I heard you say: "+text+". I'm not sure how to help with that yet. "+
		"Try asking me for the time, to search something, or to open an application."), KindUnknown), nil
}

// openTarget launches a registered application when target names or
// mentions one, otherwise opens the first matching website shortcut.
func (d *Dispatcher) openTarget(ctx context.Context, target string) (Response, error) {
	if _, ok := d.registry.App(target); ok {
		return d.openApp(ctx, target)
	}
	if name, ok := d.registry.MatchApp(target); ok {
		return d.openApp(ctx, name)
	}
	if site, ok := d.registry.MatchSite(target); ok {
		var cause error
		if err := d.launcher.OpenURL(ctx, site.URL); err != nil {
			cause = fmt.Errorf("open %s: %w", site.Name, err)
		}
		return success("Opening " + site.Name), cause
	}
	return failure("I'm not sure how to open " + target), nil
}

func withKind(r Response, kind string) Response {
	r.Action = kind
	return r
}

// normalizeWords lowercases s, drops sentence punctuation and collapses
// whitespace.
func normalizeWords(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '?', '!', ',', ';', ':', '"':
			return true
		}
		return false
	})
	return strings.Join(fields, " ")
}

func hasPhrase(words, phrase string) bool {
	return strings.Contains(" "+words+" ", " "+phrase+" ")
}

// removePhrase deletes the first whole-word occurrence of phrase.
func removePhrase(words, phrase string) string {
	padded := " " + words + " "
	i := strings.Index(padded, " "+phrase+" ")
	if i < 0 {
		return words
	}
	out := padded[:i] + padded[i+len(phrase)+1:]
	return strings.Join(strings.Fields(out), " ")
}

// spokenExpression rewrites spoken operators and keeps only characters the
// calculator understands.
func spokenExpression(s string) string {
	for _, so := range spokenOperators {
		for hasPhrase(s, so.phrase) {
			s = replacePhrase(s, so.phrase, so.op)
		}
	}
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || strings.ContainsRune("+-*/().^ ", r) {
			return r
		}
		return -1
	}, s)
}

func replacePhrase(words, phrase, with string) string {
	padded := " " + words + " "
	i := strings.Index(padded, " "+phrase+" ")
	if i < 0 {
		return words
	}
	out := padded[:i] + " " + with + " " + padded[i+len(phrase)+2:]
	return strings.Join(strings.Fields(out), " ")
}
