// Package wire defines the JSON frames exchanged on the socket channel. Both
// the gateway and the client package speak this contract.
package wire

import (
	"encoding/json"
	"time"

	"CityOps/model"
	"CityOps/tools/errs"
)

// Frame types. join and ping are the only client-to-server control frames;
// message frames flow client->server->peer, everything else is server push.
const (
	FrameJoin          = "join"
	FramePing          = "ping"
	FramePong          = "pong"
	FramePresence      = "presence-changed"
	FrameMessageSend   = "message-send"
	FrameMessageEdited = "message-edited"
	FrameMessageDelete = "message-deleted"
	FrameConvTouched   = "conversation-invalidated"
	FrameNotification  = "notification-new"
)

type Frame struct {
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Parse validates the envelope only; payload decoding is per frame type so a
// malformed payload drops one frame, never the connection.
func Parse(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.Wrap(err, "unmarshal frame")
	}
	if f.Type == "" {
		return nil, errs.New("frame missing type")
	}
	return &f, nil
}

// Marshal builds an outbound frame; payload marshal errors cannot happen for
// our own payload types, so the result is returned directly.
func Marshal(frameType string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	data, _ := json.Marshal(Frame{Type: frameType, Ts: time.Now().UnixMilli(), Payload: raw})
	return data
}

// JoinPayload binds a socket to an identity; the token is checked against the
// same verifier the REST layer uses.
type JoinPayload struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

type PresencePayload struct {
	UserID int64                `json:"user_id"`
	Status model.ActivityStatus `json:"status"`
}

// MessagePayload is the full persisted message, forwarded as-is.
type MessagePayload struct {
	Message model.Message `json:"message"`
}

type MessageEditedPayload struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Body        string `json:"body"`
}

type MessageDeletedPayload struct {
	ID          int64 `json:"id"`
	SenderID    int64 `json:"sender_id"`
	RecipientID int64 `json:"recipient_id"`
}

// ConvTouchedPayload tells a client to drop its conversation-summary cache
// for one counterpart.
type ConvTouchedPayload struct {
	PeerID int64 `json:"peer_id"`
}

type NotificationPayload struct {
	Notification model.Notification `json:"notification"`
}
