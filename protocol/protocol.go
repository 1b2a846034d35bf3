// Package protocol defines the messages exchanged between the host and an
// isolated execution context.
//
// The host sends a single request shape:
//
//	{"type":"runCode","code":"return 1+1;","id":"..."}
//
// The context answers with a readiness signal, any number of console lines,
// and exactly one result per request:
//
//	{"type":"ready"}
//	{"type":"log","payload":"hi"}
//	{"type":"result","payload":{"id":"...","ok":true,"value":"2"}}
//
// Messages only ever carry strings and freshly allocated byte slices, so a
// value that crosses the boundary never aliases state on the other side.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the tag carried by every message.
type Type string

const (
	TypeRunCode Type = "runCode"
	TypeReady   Type = "ready"
	TypeLog     Type = "log"
	TypeWarn    Type = "warn"
	TypeError   Type = "error"
	TypeResult  Type = "result"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("malformed payload")
)

// HostMessage is an execution request sent into the isolated context.
type HostMessage struct {
	Type Type   `json:"type"`
	Code string `json:"code"`
	ID   string `json:"id"`
}

// RunCode builds an execution request.
func RunCode(id, code string) HostMessage {
	return HostMessage{Type: TypeRunCode, Code: code, ID: id}
}

// ContextMessage is anything the isolated context sends back to the host.
type ContextMessage struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResultPayload is the body of a result message.
type ResultPayload struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Decode turns a wire message into a typed Event.
func Decode(msg ContextMessage) (Event, error) {
	switch msg.Type {
	case TypeReady:
		return Ready{}, nil
	case TypeLog, TypeWarn, TypeError:
		var text string
		if err := json.Unmarshal(msg.Payload, &text); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, msg.Type, err)
		}
		return LogMessage{Level: levelOf(msg.Type), Text: text}, nil
	case TypeResult:
		var p ResultPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: result: %v", ErrBadPayload, err)
		}
		return Result{ID: p.ID, OK: p.OK, Value: p.Value, Error: p.Error}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// Encode turns a typed Event into its wire message.
func Encode(ev Event) (ContextMessage, error) {
	switch e := ev.(type) {
	case Ready:
		return ContextMessage{Type: TypeReady}, nil
	case LogMessage:
		data, err := json.Marshal(e.Text)
		if err != nil {
			return ContextMessage{}, err
		}
		return ContextMessage{Type: e.Level.wireType(), Payload: data}, nil
	case Result:
		data, err := json.Marshal(ResultPayload{ID: e.ID, OK: e.OK, Value: e.Value, Error: e.Error})
		if err != nil {
			return ContextMessage{}, err
		}
		return ContextMessage{Type: TypeResult, Payload: data}, nil
	default:
		return ContextMessage{}, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
}

// MustEncode is Encode for events known to be well formed.
func MustEncode(ev Event) ContextMessage {
	msg, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return msg
}
