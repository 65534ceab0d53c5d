package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"doc-collab/backend/metrics"
	"doc-collab/backend/models"
)

// ConnState is the per-connection protocol state.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateInRoom
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in-room"
	default:
		return "disconnected"
	}
}

// Inbound is one of the client events the gateway understands.
type Inbound interface {
	inbound()
}

// JoinDocument asks to enter a document's room.
type JoinDocument models.JoinDocumentPayload

// SendMessage posts a chat message to the current document.
type SendMessage models.SendMessagePayload

func (JoinDocument) inbound() {}
func (SendMessage) inbound()  {}

// DecodeInbound parses a frame into one of the Inbound variants.
func DecodeInbound(raw []byte) (Inbound, error) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if len(frame.Data) == 0 {
		frame.Data = json.RawMessage("{}")
	}

	switch frame.Event {
	case models.EventJoinDocument:
		var payload JoinDocument
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		return payload, nil
	case models.EventSendMessage:
		var payload SendMessage
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown event %q", frame.Event)
	}
}

// Reply is the result of dispatching one inbound event: an optional frame for
// the originating connection and the connection's state afterwards.
type Reply struct {
	Event *models.Event
	State ConnState
}

// GatewayConfig carries the optional collaborators of a Gateway.
type GatewayConfig struct {
	OperationTimeout time.Duration
	Limiter          *RateLimiter
	Metrics          *metrics.Metrics
}

// Gateway turns transport events into registry, room and relay operations.
type Gateway struct {
	registry *ConnectionRegistry
	rooms    *RoomManager
	relay    *Relay
	limiter  *RateLimiter
	metrics  *metrics.Metrics
	timeout  time.Duration
	sequence *roomSequencer
}

func NewGateway(registry *ConnectionRegistry, rooms *RoomManager, relay *Relay, cfg GatewayConfig) *Gateway {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &Gateway{
		registry: registry,
		rooms:    rooms,
		relay:    relay,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		timeout:  cfg.OperationTimeout,
		sequence: newRoomSequencer(),
	}
}

// Connect registers an authenticated connection.
func (g *Gateway) Connect(connectionID, userID string, sink Sink) error {
	if err := g.registry.Register(connectionID, userID, sink); err != nil {
		log.Printf("[gateway] Refusing connection %s for user %s: %v", connectionID, userID, err)
		return err
	}
	g.metrics.IncConn()
	log.Printf("[gateway] Connection %s opened for user %s", connectionID, userID)
	return nil
}

// HandleFrame decodes a raw frame and dispatches it.
func (g *Gateway) HandleFrame(ctx context.Context, connectionID string, raw []byte) Reply {
	in, err := DecodeInbound(raw)
	if err != nil {
		return Reply{
			Event: models.NewErrorEvent(models.ErrorTypeInvalidEvent, err.Error()),
			State: g.State(connectionID),
		}
	}
	return g.Dispatch(ctx, connectionID, in)
}

// Dispatch runs one inbound event to completion for a connection.
func (g *Gateway) Dispatch(ctx context.Context, connectionID string, in Inbound) Reply {
	info, ok := g.registry.Lookup(connectionID)
	if !ok {
		return Reply{State: StateDisconnected}
	}

	switch ev := in.(type) {
	case JoinDocument:
		return g.handleJoin(info, ev)
	case SendMessage:
		return g.handleSend(ctx, info, ev)
	default:
		return Reply{
			Event: models.NewErrorEvent(models.ErrorTypeInvalidEvent, fmt.Sprintf("unsupported event %T", in)),
			State: stateOf(info),
		}
	}
}

// Disconnect cleans up after a closed connection. Only the first call for a
// connection does anything; it reports whether this call did the cleanup.
func (g *Gateway) Disconnect(connectionID string) bool {
	info, ok := g.registry.Unregister(connectionID)
	if !ok {
		return false
	}
	if info.DocumentID != "" && g.rooms.Leave(info.DocumentID, connectionID) {
		g.metrics.IncPresence()
	}
	g.metrics.DecConn()
	log.Printf("[gateway] Connection %s closed for user %s", connectionID, info.UserID)
	return true
}

// State reports the protocol state of a connection.
func (g *Gateway) State(connectionID string) ConnState {
	info, ok := g.registry.Lookup(connectionID)
	if !ok {
		return StateDisconnected
	}
	return stateOf(info)
}

// FrameLimit is the largest inbound frame a connection accepts: room for a
// maximum-length message with every rune JSON-escaped, plus the envelope.
func (g *Gateway) FrameLimit() int64 {
	limit := int64(g.relay.maxLength)*6 + frameOverhead
	if limit < defaultFrameLimit {
		return defaultFrameLimit
	}
	return limit
}

// CloseAll closes every live connection.
func (g *Gateway) CloseAll() {
	g.registry.CloseAll()
}

func (g *Gateway) handleJoin(info ConnectionInfo, ev JoinDocument) Reply {
	var err error
	switch {
	case ev.UserID == "":
		err = fmt.Errorf("%w: user id is required", ErrJoin)
	case ev.UserID != info.UserID:
		err = fmt.Errorf("%w: user is not authenticated on this connection", ErrJoin)
	case ev.DocumentID == "":
		err = fmt.Errorf("%w: document id is required", ErrJoin)
	}
	if err == nil {
		var joined bool
		joined, err = g.rooms.Join(ev.DocumentID, info.ConnectionID, info.UserID)
		if joined {
			g.metrics.IncPresence()
		}
	}
	if err != nil {
		if !errors.Is(err, ErrJoin) {
			err = fmt.Errorf("%w: %w", ErrJoin, err)
		}
		g.metrics.IncJoinError()
		log.Printf("[gateway] Join by %s rejected: %v", info.ConnectionID, err)
		return Reply{Event: errorEvent(err), State: g.State(info.ConnectionID)}
	}
	return Reply{State: g.State(info.ConnectionID)}
}

func (g *Gateway) handleSend(ctx context.Context, info ConnectionInfo, ev SendMessage) Reply {
	documentID := ev.DocumentID
	if documentID == "" {
		documentID = info.DocumentID
	}

	var err error
	switch {
	case info.DocumentID == "" || documentID != info.DocumentID:
		err = fmt.Errorf("%w: %s", ErrNotInRoom, documentID)
	case ev.UserID != "" && ev.UserID != info.UserID:
		err = fmt.Errorf("%w: author does not match the connection", ErrInvalidMessage)
	default:
		err = g.relay.Validate(ev.Content)
	}
	if err == nil && !g.limiter.Allow(info.UserID) {
		err = ErrRateLimited
	}
	if err != nil {
		return g.messageFailure(info, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Members see a room's messages in the order the store accepted them.
	unlock := g.sequence.lock(documentID)
	defer unlock()

	msg, err := g.relay.Send(opCtx, documentID, info.UserID, ev.Content)
	if err != nil {
		return g.messageFailure(info, err)
	}

	g.rooms.Broadcast(documentID, models.NewMessageEvent(msg))
	g.metrics.IncMessage()
	return Reply{State: StateInRoom}
}

func (g *Gateway) messageFailure(info ConnectionInfo, err error) Reply {
	g.metrics.IncMessageError()
	log.Printf("[gateway] Message from %s rejected: %v", info.ConnectionID, err)
	return Reply{Event: errorEvent(err), State: stateOf(info)}
}

func stateOf(info ConnectionInfo) ConnState {
	if info.DocumentID != "" {
		return StateInRoom
	}
	return StateConnected
}
