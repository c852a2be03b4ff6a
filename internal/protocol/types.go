package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageID correlates a request with its response. Ids are assigned by the
// sender, start at 0 and grow by one per request until the sender is torn down.
type MessageID int64

// Request is an outbound envelope. ID is nil only for id-less events pushed to
// a child window.
type Request struct {
	ID                 *MessageID `json:"id,omitempty"`
	UUID               string     `json:"uuid,omitempty"`
	Func               string     `json:"func"`
	Args               []any      `json:"args"`
	APIVersionTag      string     `json:"apiVersionTag,omitempty"`
	Timestamp          int64      `json:"timestamp,omitempty"`
	IsProxiedFromChild bool       `json:"isProxiedFromChild,omitempty"`
}

// Response answers the request carrying the same ID.
type Response struct {
	ID                MessageID `json:"id"`
	UUID              string    `json:"uuid,omitempty"`
	Args              []any     `json:"args"`
	IsPartialResponse bool      `json:"isPartialResponse,omitempty"`
}

// Message is the decoded shape of any inbound envelope. Whether it is a
// response, a request or an event depends on which of ID and Func are set.
type Message struct {
	ID                 *MessageID `json:"id,omitempty"`
	UUID               string     `json:"uuid,omitempty"`
	Func               *string    `json:"func,omitempty"`
	Args               []any      `json:"args,omitempty"`
	APIVersionTag      string     `json:"apiVersionTag,omitempty"`
	Timestamp          int64      `json:"timestamp,omitempty"`
	IsPartialResponse  bool       `json:"isPartialResponse,omitempty"`
	IsProxiedFromChild bool       `json:"isProxiedFromChild,omitempty"`
}

// HasID reports whether the envelope carries a correlation id.
func (m *Message) HasID() bool { return m.ID != nil }

// HasFunc reports whether the envelope names an action.
func (m *Message) HasFunc() bool { return m.Func != nil }

// FuncName returns the action name or "" when absent.
func (m *Message) FuncName() string {
	if m.Func == nil {
		return ""
	}
	return *m.Func
}

// NewRequest builds a request envelope stamped with a fresh uuid and the
// current time.
func NewRequest(id MessageID, tag, fn string, args []any) *Request {
	if args == nil {
		args = []any{}
	}
	return &Request{
		ID:            &id,
		UUID:          uuid.NewString(),
		Func:          fn,
		Args:          args,
		APIVersionTag: tag,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// NewEvent builds an id-less envelope used for events relayed to a child.
func NewEvent(fn string, args []any) *Request {
	if args == nil {
		args = []any{}
	}
	return &Request{Func: fn, Args: args}
}

// NewResponse builds a response envelope.
func NewResponse(id MessageID, requestUUID string, args []any, partial bool) *Response {
	if args == nil {
		args = []any{}
	}
	return &Response{ID: id, UUID: requestUUID, Args: args, IsPartialResponse: partial}
}

// IDString renders an optional id for logs.
func IDString(id *MessageID) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *id)
}
