package ws

import "encoding/json"

// Envelope types.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Error codes sent in RPCError.Code.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidParams  = "INVALID_PARAMS"
	CodeUnknownMethod  = "UNKNOWN_METHOD"
	CodeUnavailable    = "UNAVAILABLE"
	CodeDBError        = "DB_ERROR"
)

// RPCMessage is an inbound envelope; Params stays raw until Type is known.
type RPCMessage struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCRequest is a "req" envelope whose params decoded to an object.
type RPCRequest struct {
	ID     string
	Method string
	Params map[string]json.RawMessage
}

// RPCResponse answers one request by ID.
type RPCResponse struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	OK      bool      `json:"ok"`
	Payload any       `json:"payload,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RPCEvent is pushed to every client, e.g. "command.completed".
type RPCEvent struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

func NewResponse(id string, payload any) RPCResponse {
	return RPCResponse{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

func NewErrorResponse(id, code, message string) RPCResponse {
	return RPCResponse{Type: TypeResponse, ID: id, Error: &RPCError{Code: code, Message: message}}
}

func NewEvent(event string, payload any) RPCEvent {
	return RPCEvent{Type: TypeEvent, Event: event, Payload: payload}
}
