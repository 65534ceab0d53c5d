package models

import "encoding/json"

// Event names carried in the "event" field of a frame.
const (
	EventJoinDocument = "join-document"
	EventSendMessage  = "send-message"

	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventNewMessage   = "new-message"
	EventError        = "error"
	EventConnectError = "connect_error"
)

// Error tags carried in ErrorPayload.Type.
const (
	ErrorTypeJoin         = "join-error"
	ErrorTypeMessage      = "message-error"
	ErrorTypeTimeout      = "timeout"
	ErrorTypeInvalidEvent = "invalid-event"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame before encoding.
type Event struct {
	Name string
	Data any
}

// MarshalJSON encodes the event as a Frame.
func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.Name, Data: data})
}

// JoinDocumentPayload is the data of a join-document frame.
type JoinDocumentPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
}

// SendMessagePayload is the data of a send-message frame.
type SendMessagePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	UserID     string `json:"userId"`
}

// PresencePayload is the data of user-joined and user-left.
type PresencePayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ConnectErrorPayload is sent before closing a connection whose handshake failed.
type ConnectErrorPayload struct {
	Message string `json:"message"`
}

// NewErrorEvent builds an error frame for the originating connection.
func NewErrorEvent(errType, message string) *Event {
	return &Event{Name: EventError, Data: ErrorPayload{Type: errType, Message: message}}
}

// NewPresenceEvent builds a user-joined or user-left frame.
func NewPresenceEvent(name, userID, connectionID string) *Event {
	return &Event{Name: name, Data: PresencePayload{UserID: userID, ConnectionID: connectionID}}
}

// NewMessageEvent builds the new-message frame broadcast after persistence.
func NewMessageEvent(msg *Message) *Event {
	return &Event{Name: EventNewMessage, Data: msg}
}
