package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"doc-collab/backend/models"
	"doc-collab/backend/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server accepts websocket handshakes and runs the per-connection pumps.
type Server struct {
	ctx       context.Context
	gateway   *Gateway
	jwtSecret string
	upgrader  websocket.Upgrader

	// mu orders registrations against Shutdown; closing is set once.
	mu      sync.RWMutex
	closing bool
}

// NewServer builds the handshake handler. ctx bounds every dispatched operation;
// allowedOrigins may contain "*".
func NewServer(ctx context.Context, gateway *Gateway, jwtSecret string, allowedOrigins []string) *Server {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}
	return &Server{
		ctx:       ctx,
		gateway:   gateway,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// HandleConnections authenticates the handshake token, upgrades the request
// and serves the connection until it closes.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	userID, authErr := s.authenticate(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	if authErr != nil {
		log.Printf("Handshake rejected from %s: %v", r.RemoteAddr, authErr)
		rejectHandshake(conn, authErr.Error())
		return
	}

	client := newClient(uuid.NewString(), s.gateway, conn)
	if err := s.connect(client, userID); err != nil {
		rejectHandshake(conn, err.Error())
		return
	}

	go client.writePump()
	client.readPump(s.ctx)
}

// Shutdown refuses further handshakes and closes every live connection.
// Connections registered before it returns are all closed.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.gateway.CloseAll()
}

func (s *Server) connect(client *Client, userID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return ErrShuttingDown
	}
	return s.gateway.Connect(client.id, userID, client)
}

func (s *Server) isClosing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closing
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	token, err := utils.TokenFromRequest(r)
	if err != nil {
		return "", err
	}
	return utils.GetUserIDFromToken(token, s.jwtSecret)
}

func rejectHandshake(conn *websocket.Conn, reason string) {
	defer conn.Close()
	frame, err := json.Marshal(models.Event{
		Name: models.EventConnectError,
		Data: models.ConnectErrorPayload{Message: reason},
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"), time.Now().Add(writeWait))
}
