package rpc

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nicebartender/deskassist-server/assistant"
	"github.com/nicebartender/deskassist-server/db"
	"github.com/nicebartender/deskassist-server/ws"
)

// HistoryReader lists recent journal entries.
type HistoryReader interface {
	RecentEntries(ctx context.Context, limit int) ([]db.Entry, error)
}

type Router struct {
	Hub        *ws.Hub
	Dispatcher *assistant.Dispatcher
	History    HistoryReader
}

func NewRouter(hub *ws.Hub, dispatcher *assistant.Dispatcher, history HistoryReader) *Router {
	r := &Router{Hub: hub, Dispatcher: dispatcher, History: history}
	hub.RPCRouter = r.Handle
	return r
}

func (r *Router) Handle(client *ws.Client, req ws.RPCRequest) {
	slog.Debug("RPC", "method", req.Method, "id", req.ID)
	ctx := context.Background()

	switch req.Method {
	case "time":
		client.SendJSON(ws.NewResponse(req.ID, map[string]string{"time": r.Dispatcher.Time()}))
	case "date":
		client.SendJSON(ws.NewResponse(req.ID, map[string]string{"date": r.Dispatcher.Date()}))
	case "search":
		client.SendJSON(ws.NewResponse(req.ID, r.Dispatcher.Search(ctx, jsonString(req.Params["query"]))))
	case "openApp":
		client.SendJSON(ws.NewResponse(req.ID, r.Dispatcher.OpenApp(ctx, jsonString(req.Params["app"]))))
	case "calculate":
		client.SendJSON(ws.NewResponse(req.ID, r.Dispatcher.Calculate(ctx, jsonString(req.Params["expression"]))))
	case "command":
		client.SendJSON(ws.NewResponse(req.ID, r.Dispatcher.Command(ctx, jsonString(req.Params["text"]))))
	case "history":
		r.handleHistory(ctx, client, req)
	default:
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeUnknownMethod, "Unknown method: "+req.Method))
	}
}

func (r *Router) handleHistory(ctx context.Context, client *ws.Client, req ws.RPCRequest) {
	if r.History == nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeUnavailable, "history is not enabled"))
		return
	}
	entries, err := r.History.RecentEntries(ctx, jsonInt(req.Params["limit"]))
	if err != nil {
		slog.Error("history query failed", "err", err)
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeDBError, "history is unavailable"))
		return
	}
	client.SendJSON(ws.NewResponse(req.ID, map[string]any{
		"entries": PublicEntries(entries),
	}))
}

// PublicEntries converts journal rows to the shape clients see; internal
// failure detail is left out.
func PublicEntries(entries []db.Entry) []assistant.Entry {
	out := make([]assistant.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, assistant.Entry{
			ID:         e.ID,
			Action:     e.Action,
			Input:      e.Input,
			Status:     e.Status,
			Message:    e.Message,
			DurationMS: e.DurationMS,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func jsonString(raw json.RawMessage) string {
	var s string
	if raw != nil {
		json.Unmarshal(raw, &s)
	}
	return s
}

func jsonInt(raw json.RawMessage) int {
	var i int
	if raw != nil {
		json.Unmarshal(raw, &i)
	}
	return i
}
