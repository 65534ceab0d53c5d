package websocket

import (
	"context"
	"errors"

	"doc-collab/backend/models"
)

var (
	// ErrDuplicateConnection means the transport reused a live connection ID.
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrUnknownConnection is returned for operations on unregistered connections.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrJoin is an unauthenticated or malformed join attempt.
	ErrJoin = errors.New("join rejected")
	// ErrNotInRoom is a send-message outside the document the connection joined.
	ErrNotInRoom = errors.New("not joined to document")
	// ErrInvalidMessage is empty or oversized message content.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrRateLimited is a send-message over the per-user budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrPersistence is a failed message write.
	ErrPersistence = errors.New("message could not be saved")
	// ErrTimeout is an operation that ran past the gateway deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrShuttingDown refuses handshakes that arrive during shutdown.
	ErrShuttingDown = errors.New("server is shutting down")
	// ErrTransport is a connection-level failure; it ends the connection.
	ErrTransport = errors.New("transport error")
)

// errorEvent converts a per-event failure into the frame sent back to the
// originating connection.
func errorEvent(err error) *models.Event {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.NewErrorEvent(models.ErrorTypeTimeout, ErrTimeout.Error())
	case errors.Is(err, ErrJoin):
		return models.NewErrorEvent(models.ErrorTypeJoin, err.Error())
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrNotInRoom):
		return models.NewErrorEvent(models.ErrorTypeMessage, err.Error())
	case errors.Is(err, ErrRateLimited):
		return models.NewErrorEvent(models.ErrorTypeMessage, "You're sending messages too quickly. Please wait a moment and try again.")
	default:
		return models.NewErrorEvent(models.ErrorTypeMessage, "Error sending the message")
	}
}
