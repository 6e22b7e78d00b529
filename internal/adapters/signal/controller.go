// Package signal is the WebSocket transport in front of the relay. It owns
// socket lifecycle (upgrade, pumps, heartbeat) and translates wire envelopes
// into relay operations.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/carelink/callsignal/internal/config"
	"github.com/carelink/callsignal/internal/domain"
	"github.com/carelink/callsignal/internal/monitoring"
	"github.com/carelink/callsignal/internal/relay"
	"github.com/carelink/callsignal/internal/rtc"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handlerFunc func(c *wsConn, data json.RawMessage)

type Controller struct {
	relay    *relay.Relay
	cfg      *config.Config
	ice      []webrtc.ICEServer
	limiter  *JoinRateLimiter
	handlers map[string]handlerFunc
}

func NewController(cfg *config.Config, rly *relay.Relay) *Controller {
	ctl := &Controller{
		relay:   rly,
		cfg:     cfg,
		ice:     rtc.ICEServers(cfg.ICEServerURLs),
		limiter: NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
	}
	ctl.handlers = map[string]handlerFunc{
		domain.EventJoinSession:  ctl.handleJoin,
		domain.EventSignal:       ctl.handleSignal,
		domain.EventLeaveSession: ctl.handleLeave,
	}
	return ctl
}

type welcome struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	ICEServers   []webrtc.ICEServer  `json:"iceServers"`
}

// HandleWS upgrades the request and runs the connection until the socket
// drops or ctx is canceled.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewConnectionID()
	conn := newWSConn(id, ws, ctl.cfg.SendQueueSize)
	if err := ctl.relay.Register(id, conn); err != nil {
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	_ = conn.TrySend(domain.EventWelcome, welcome{ConnectionID: id, ICEServers: ctl.ice})

	go conn.writePump(ctl.cfg.PingPeriod)
	go ctl.readPump(ctx, conn)
}

// readPump is the sole reader of the socket. Its defer is the one guaranteed
// cleanup path for the connection, whatever killed the read.
func (ctl *Controller) readPump(ctx context.Context, c *wsConn) {
	defer func() {
		_ = ctl.relay.Disconnect(c.id)
		ctl.limiter.Forget(c.id)
		c.Close()
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("connection closed")
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(c, data)
		}
	}
}

func (ctl *Controller) dispatch(c *wsConn, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad envelope")
		ctl.reject(c, domain.ReasonInvalidRequest)
		return
	}
	h, ok := ctl.handlers[env.Event]
	if !ok {
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
		ctl.reject(c, domain.ReasonInvalidRequest)
		return
	}
	h(c, env.Data)
}

func (ctl *Controller) handleJoin(c *wsConn, data json.RawMessage) {
	if !ctl.limiter.Allow(c.id) {
		ctl.reject(c, domain.ReasonRateLimited)
		return
	}
	var p domain.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.reject(c, domain.ReasonInvalidRequest)
		return
	}
	ctl.finish(c, ctl.relay.Join(c.id, domain.SessionID(p.SessionID)))
}

func (ctl *Controller) handleSignal(c *wsConn, data json.RawMessage) {
	var p domain.ClientSignal
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" || p.Kind == "" {
		ctl.reject(c, domain.ReasonInvalidRequest)
		return
	}
	ctl.finish(c, ctl.relay.Relay(c.id, domain.SessionID(p.SessionID), p.Kind, p.Payload))
}

func (ctl *Controller) handleLeave(c *wsConn, _ json.RawMessage) {
	ctl.finish(c, ctl.relay.Leave(c.id))
}

// finish maps a relay result onto the wire. Success is silent; the caller
// learns about membership changes through lifecycle events instead.
func (ctl *Controller) finish(c *wsConn, err error) {
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNotAMember):
		ctl.reject(c, domain.ReasonNotAMember)
	case errors.Is(err, relay.ErrSessionFull):
		ctl.reject(c, domain.ReasonSessionFull)
	case errors.Is(err, relay.ErrInvalidRequest):
		ctl.reject(c, domain.ReasonInvalidRequest)
	default:
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("relay operation failed")
	}
}

func (ctl *Controller) reject(c *wsConn, reason domain.ErrorReason) {
	monitoring.RejectedOps.WithLabelValues(string(reason)).Inc()
	_ = c.TrySend(domain.EventError, domain.ErrorNotice{Reason: reason})
}
