package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/carelink/callsignal/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

type frame struct {
	event string
	data  any
}

// wsConn wraps one client socket with a bounded outbound queue. A single
// write pump owns the socket for writing; everyone else goes through TrySend.
type wsConn struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(id domain.ConnectionID, conn *websocket.Conn, queueSize int) *wsConn {
	return &wsConn{
		id:   id,
		conn: conn,
		send: make(chan frame, queueSize),
	}
}

// TrySend queues an event for delivery. It never blocks: a full queue means
// the consumer stalled and the frame is dropped with ErrBackpressure.
func (c *wsConn) TrySend(event string, data any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- frame{event: event, data: data}:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// writePump drains the send queue onto the socket and keeps the transport
// heartbeat going. Exits when the queue closes or a write fails.
func (c *wsConn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeFrame(f); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) writeFrame(f frame) error {
	data, err := json.Marshal(f.data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", f.event).Msg("marshal outbound event")
		return nil
	}
	b, err := json.Marshal(domain.Envelope{Event: f.event, Data: data})
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
