package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"doc-collab/backend/models"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Smallest inbound frame limit, used when message length is unbounded or small.
	defaultFrameLimit = 16 * 1024

	// Envelope, event name, ids and JSON punctuation around the content.
	frameOverhead = 1024

	sendBufferSize = 256
)

// ErrSendBufferFull is returned by Client.Send when the peer is not reading fast enough.
var ErrSendBufferFull = errors.New("send buffer full")

// Client is one websocket connection. It implements Sink.
type Client struct {
	id        string
	gateway   *Gateway
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, gateway *Gateway, conn *websocket.Conn) *Client {
	return &Client{
		id:      id,
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Send queues a frame without blocking. A client whose queue is full is
// closed; its own read loop then performs the disconnect.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: connection %s closed", ErrTransport, c.id)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// Close asks the write loop to send a close frame and drop the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) push(event *models.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling %s for %s: %v", event.Name, c.id, err)
		return
	}
	if err := c.Send(frame); err != nil {
		log.Printf("Error queueing %s for %s: %v", event.Name, c.id, err)
	}
}

// readPump handles inbound frames one at a time, so a connection's events
// complete in the order they were sent.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.gateway.Disconnect(c.id)
		_ = c.Close()
	}()
	c.conn.SetReadLimit(c.gateway.FrameLimit())
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading from %s: %v", c.id, err)
			}
			return
		}

		reply := c.gateway.HandleFrame(ctx, c.id, payload)
		if reply.Event != nil {
			c.push(reply.Event)
		}
		if reply.State == StateDisconnected {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}
