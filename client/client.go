// Package client is the sync layer embedded in a CityOps front-end process.
// It owns exactly one socket handle, constructed explicitly and handed to
// every surface that needs it, never a lazily-initialized global. Surfaces
// (Thread, Feed, Badge) subscribe to typed events, reconcile against periodic
// REST snapshots, and apply optimistic mutations with a compensation path.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"CityOps/logger"
	"CityOps/model"
	"CityOps/tools/errs"
	"CityOps/tools/safe"
	"CityOps/wire"

	"github.com/gorilla/websocket"
)

type Config struct {
	SocketURL string // ws://host/ws
	BaseURL   string // http://host/api
	UserID    int64
	Token     string

	// PollEvery is the reconciliation interval shared by surfaces that do
	// not override it.
	PollEvery time.Duration

	HTTP *http.Client
}

func (c *Config) norm() error {
	if c.SocketURL == "" || c.BaseURL == "" {
		return errs.New("socket and base URLs are required")
	}
	if c.UserID <= 0 {
		return errs.New("user id required")
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 20 * time.Second
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	return nil
}

type Client struct {
	cfg   Config
	rest  *restClient
	bus   *eventBus
	dedup *recentIDs

	mu      sync.Mutex
	sock    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg Config) (*Client, error) {
	if err := cfg.norm(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:   cfg,
		rest:  newRestClient(cfg.BaseURL, cfg.Token, cfg.HTTP),
		bus:   newEventBus(),
		dedup: newRecentIDs(512),
		done:  make(chan struct{}),
	}, nil
}

// Connect starts the socket loop: dial, join, read until failure, reconnect
// with capped backoff. Missed events during a gap are reconciled by the next
// poll tick, so there is no replay.
func (c *Client) Connect() {
	safe.Go(c.run)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.sock != nil {
			_ = c.sock.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Client) run() {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return
		default:
		}

		sock, _, err := websocket.DefaultDialer.Dial(c.cfg.SocketURL, nil)
		if err != nil {
			logger.Debugf("[client] dial failed, retrying in %s: %v", backoff, err)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.sock = sock
		c.mu.Unlock()

		c.emit(wire.FrameJoin, wire.JoinPayload{UserID: c.cfg.UserID, Token: c.cfg.Token})
		c.readLoop(sock)

		c.mu.Lock()
		c.sock = nil
		c.mu.Unlock()
		_ = sock.Close()
	}
}

func (c *Client) readLoop(sock *websocket.Conn) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			logger.Debugf("[client] socket read ended: %v", err)
			return
		}
		frame, err := wire.Parse(data)
		if err != nil {
			logger.Debugf("[client] drop unparseable frame: %v", err)
			continue
		}
		c.dispatch(frame)
	}
}

// dispatch decodes the payload per frame type and fans it to the typed bus.
// A malformed payload drops that frame only.
func (c *Client) dispatch(frame *wire.Frame) {
	switch frame.Type {
	case wire.FramePresence:
		var p wire.PresencePayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.UserID == 0 {
			return
		}
		c.bus.emitPresence(p)

	case wire.FrameMessageSend:
		var p wire.MessagePayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.Message.ID == 0 {
			return
		}
		c.bus.emitMessageNew(p.Message)

	case wire.FrameMessageEdited:
		var p wire.MessageEditedPayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.ID == 0 {
			return
		}
		c.bus.emitMessageEdited(p)

	case wire.FrameMessageDelete:
		var p wire.MessageDeletedPayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.ID == 0 {
			return
		}
		c.bus.emitMessageDeleted(p)

	case wire.FrameConvTouched:
		var p wire.ConvTouchedPayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.PeerID == 0 {
			return
		}
		c.bus.emitConvTouched(p)

	case wire.FrameNotification:
		var p wire.NotificationPayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.Notification.ID == 0 {
			return
		}
		// Reconnect replays deliver the same id twice; show it once.
		if c.dedup.Seen(p.Notification.ID) {
			return
		}
		c.bus.emitNotification(p.Notification)

	case wire.FramePong:
		// keepalive reply, nothing to do

	default:
		logger.Debugf("[client] ignore frame type=%s", frame.Type)
	}
}

// emit writes a frame if the socket is up; when it is not, the event is
// simply lost and peers converge on their next poll.
func (c *Client) emit(frameType string, payload any) {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := sock.WriteMessage(websocket.TextMessage, wire.Marshal(frameType, payload)); err != nil {
		logger.Debugf("[client] emit %s failed: %v", frameType, err)
	}
}

// EmitMessageSend announces an already-persisted message so other live
// clients catch up without waiting for their poll.
func (c *Client) EmitMessageSend(m model.Message) {
	c.emit(wire.FrameMessageSend, wire.MessagePayload{Message: m})
}

func (c *Client) EmitMessageEdited(p wire.MessageEditedPayload) {
	c.emit(wire.FrameMessageEdited, p)
}

func (c *Client) EmitMessageDeleted(p wire.MessageDeletedPayload) {
	c.emit(wire.FrameMessageDelete, p)
}

// Typed subscriptions; each returns an unsubscribe func the surface runs on
// Close so navigating away cannot leak handlers.

func (c *Client) OnPresence(fn func(wire.PresencePayload)) func() { return c.bus.onPresence(fn) }
func (c *Client) OnMessage(fn func(model.Message)) func()         { return c.bus.onMessageNew(fn) }
func (c *Client) OnMessageEdited(fn func(wire.MessageEditedPayload)) func() {
	return c.bus.onMessageEdited(fn)
}
func (c *Client) OnMessageDeleted(fn func(wire.MessageDeletedPayload)) func() {
	return c.bus.onMessageDeleted(fn)
}
func (c *Client) OnConversationTouched(fn func(wire.ConvTouchedPayload)) func() {
	return c.bus.onConvTouched(fn)
}
func (c *Client) OnNotification(fn func(model.Notification)) func() {
	return c.bus.onNotification(fn)
}

// Users fetches the directory for id-to-name mapping.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	return c.rest.Users(ctx)
}
