package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"CityOps/logger"
	"CityOps/service/bus"
	"CityOps/tools/decode"
	"CityOps/tools/ids"
	"CityOps/tools/safe"
	"CityOps/tools/security"
	"CityOps/wire"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Config struct {
	UnauthTTL  time.Duration // grace before an un-joined socket is swept
	AuthTTL    time.Duration // heartbeat deadline, renewed by pong
	SweepEvery time.Duration
	PingEvery  time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendQueue  int
	JWT        security.Options
}

func (c *Config) norm() {
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = 90 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.PingEvery <= 0 {
		c.PingEvery = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// Server owns the websocket endpoint: upgrade, the join handshake, inbound
// frame handling and the expiry sweeper.
type Server struct {
	cfg     Config
	reg     *Registry
	tracker *Tracker
	b       bus.Bus

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewServer(cfg Config, reg *Registry, tracker *Tracker, b bus.Bus) *Server {
	cfg.norm()
	s := &Server{cfg: cfg, reg: reg, tracker: tracker, b: b, stopCh: make(chan struct{})}
	safe.Go(s.sweeper)
	return s
}

func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// HandleWS upgrades the request and runs the read loop until the peer goes
// away. The socket starts unauthorized; a valid join frame binds it.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	conn := newConn(ids.GenerateString(), ws, s.cfg.SendQueue)
	s.reg.AddUnauth(conn, s.cfg.UnauthTTL)

	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		s.reg.Touch(conn, s.cfg.AuthTTL)
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	safe.Go(func() { conn.writeLoop(s.cfg.PingEvery, s.cfg.WriteWait) })
	s.readLoop(conn, ws)
}

func (s *Server) readLoop(conn *Conn, ws *websocket.Conn) {
	defer func() {
		s.tracker.HandleDisconnect(context.Background(), conn)
		conn.Close()
	}()

	var joinedUser int64

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("[ws] peer closed conn=%s: %v", conn.ID, err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Debugf("[ws] read timeout conn=%s: %v", conn.ID, err)
			} else {
				logger.Debugf("[ws] read error conn=%s: %v", conn.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, err := wire.Parse(data)
		if err != nil {
			logger.Debugf("[ws] drop unparseable frame conn=%s: %v", conn.ID, err)
			continue
		}

		switch frame.Type {
		case wire.FrameJoin:
			if uid, ok := s.handleJoin(conn, frame); ok {
				joinedUser = uid
			}

		case wire.FramePing:
			conn.Queue(wire.Marshal(wire.FramePong, nil))

		case wire.FrameMessageSend:
			if joinedUser == 0 {
				continue
			}
			var p wire.MessagePayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Message.ID == 0 {
				logger.Debugf("[ws] drop malformed message-send conn=%s", conn.ID)
				continue
			}
			if err := s.b.Publish(bus.SubjectMessageSend, bus.MessageEvent{Message: p.Message}); err != nil {
				logger.Warnf("[ws] publish message-send failed: %v", err)
			}

		case wire.FrameMessageEdited:
			if joinedUser == 0 {
				continue
			}
			var p wire.MessageEditedPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ID == 0 {
				logger.Debugf("[ws] drop malformed message-edited conn=%s", conn.ID)
				continue
			}
			if err := s.b.Publish(bus.SubjectMessageEdit, bus.MessageEditEvent{
				ID: p.ID, SenderID: p.SenderID, RecipientID: p.RecipientID, Body: p.Body,
			}); err != nil {
				logger.Warnf("[ws] publish message-edited failed: %v", err)
			}

		case wire.FrameMessageDelete:
			if joinedUser == 0 {
				continue
			}
			var p wire.MessageDeletedPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ID == 0 {
				logger.Debugf("[ws] drop malformed message-deleted conn=%s", conn.ID)
				continue
			}
			if err := s.b.Publish(bus.SubjectMessageDelete, bus.MessageDeleteEvent{
				ID: p.ID, SenderID: p.SenderID, RecipientID: p.RecipientID,
			}); err != nil {
				logger.Warnf("[ws] publish message-deleted failed: %v", err)
			}

		default:
			logger.Debugf("[ws] ignore frame type=%s conn=%s", frame.Type, conn.ID)
		}
	}
}

// handleJoin verifies the token and binds the connection. A bad join leaves
// the socket unauthorized; the sweeper will reclaim it.
func (s *Server) handleJoin(conn *Conn, frame *wire.Frame) (int64, bool) {
	var m map[string]any
	if err := json.Unmarshal(frame.Payload, &m); err != nil {
		logger.Debugf("[ws] drop malformed join conn=%s: %v", conn.ID, err)
		return 0, false
	}
	p, err := decode.Map[wire.JoinPayload](m)
	if err != nil || p.UserID == 0 {
		logger.Debugf("[ws] drop join with missing user id conn=%s", conn.ID)
		return 0, false
	}

	uid, err := security.Verify(s.cfg.JWT, p.Token)
	if err != nil || uid != p.UserID {
		logger.Infof("[ws] join rejected for user %d conn=%s: %v", p.UserID, conn.ID, err)
		return 0, false
	}

	s.tracker.HandleJoin(context.Background(), conn, p.UserID)
	logger.Infof("[ws] user %d joined conn=%s", p.UserID, conn.ID)
	return p.UserID, true
}

func (s *Server) sweeper() {
	t := time.NewTicker(s.cfg.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			for _, c := range s.reg.Expired(now) {
				logger.Infof("[ws] sweeping expired conn=%s", c.ID)
				s.tracker.HandleDisconnect(context.Background(), c)
				c.Close()
			}
		}
	}
}
