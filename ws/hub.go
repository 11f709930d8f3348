package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex

	RPCRouter func(client *Client, req RPCRequest)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run owns client registration until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			slog.Info("client connected", "clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.done)
			}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Info("client unregistered", "clients", n)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.done)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast sends event to every connected client.
func (h *Hub) Broadcast(event RPCEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.SendJSON(event)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleMessage(client *Client, data []byte) {
	var msg RPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "err", err)
		client.SendJSON(NewErrorResponse("", CodeInvalidMessage, "message is not valid JSON"))
		return
	}

	switch msg.Type {
	case TypeRequest:
		params := make(map[string]json.RawMessage)
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				slog.Warn("invalid params", "method", msg.Method, "err", err)
				client.SendJSON(NewErrorResponse(msg.ID, CodeInvalidParams, "params must be a JSON object"))
				return
			}
			if params == nil {
				params = make(map[string]json.RawMessage)
			}
		}
		if h.RPCRouter != nil {
			h.RPCRouter(client, RPCRequest{ID: msg.ID, Method: msg.Method, Params: params})
		}

	default:
		slog.Warn("unknown message type", "type", msg.Type)
	}
}
