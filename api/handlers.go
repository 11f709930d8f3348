package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nicebartender/deskassist-server/assistant"
	"github.com/nicebartender/deskassist-server/rpc"
)

const maxBodyBytes = 64 << 10

type searchRequest struct {
	Query string `json:"query"`
}

type openAppRequest struct {
	App string `json:"app"`
}

type calculateRequest struct {
	Expression string `json:"expression"`
}

type commandRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"time": s.dispatcher.Time()})
}

func (s *Server) handleDate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"date": s.dispatcher.Date()})
}

// handleSearch opens a browser search.
// Method: POST
// Request: {"query": string}
// Response (200): {"status", "message"}
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !requireMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Search(r.Context(), req.Query))
}

// handleOpenApp launches a registered application.
// Method: POST
// Request: {"app": string}
// Response (200): {"status", "message"}
func (s *Server) handleOpenApp(w http.ResponseWriter, r *http.Request) {
	var req openAppRequest
	if !requireMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.OpenApp(r.Context(), req.App))
}

// handleCalculate evaluates an arithmetic expression.
// Method: POST
// Request: {"expression": string}
// Response (200): {"status", "result"} or {"status", "message"}
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !requireMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Calculate(r.Context(), req.Expression))
}

// handleCommand interprets a spoken command.
// Method: POST
// Request: {"text": string}
// Response (200): {"status", "message", "action"}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !requireMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Command(r.Context(), req.Text))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, errorBody("history is not enabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = v
	}

	entries, err := s.history.RecentEntries(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "history query failed", "err", err)
		writeJSON(w, http.StatusOK, errorBody("history is unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  assistant.StatusSuccess,
		"entries": rpc.PublicEntries(entries),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"canLaunch": s.dispatcher.CanLaunchApps(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody("not found"))
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", OPTIONS")
	writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	return false
}

// decodeBody reads a JSON object into v. An empty body leaves v at its
// zero value, so every field falls back to its default.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return false
	}
	return true
}

func errorBody(message string) assistant.Response {
	return assistant.Response{Status: assistant.StatusError, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
