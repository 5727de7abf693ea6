package gateway

import (
	"encoding/json"

	"CityOps/logger"
	"CityOps/service/bus"
	"CityOps/wire"
)

// Relay consumes domain events from the bus and forwards them to the two
// participants' connections (or everyone, for broadcast notifications). It is
// purely a notification mechanism: persistence and ownership checks happened
// on the REST path before the event was published. A recipient with no live
// connection is silently skipped; the conversation poll is the catch-all.
type Relay struct {
	reg    *Registry
	fan    *Fanout
	b      bus.Bus
	unsubs []func()
}

func NewRelay(reg *Registry, fan *Fanout, b bus.Bus) *Relay {
	return &Relay{reg: reg, fan: fan, b: b}
}

func (r *Relay) Start() error {
	subs := map[string]bus.Handler{
		bus.SubjectMessageSend:   r.handleSend,
		bus.SubjectMessageEdit:   r.handleEdit,
		bus.SubjectMessageDelete: r.handleDelete,
		bus.SubjectNotify:        r.handleNotify,
	}
	for subject, h := range subs {
		unsub, err := r.b.Subscribe(subject, h)
		if err != nil {
			r.Close()
			return err
		}
		r.unsubs = append(r.unsubs, unsub)
	}
	return nil
}

func (r *Relay) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// handleSend forwards the persisted message to both parties and tells both
// sync layers to drop their conversation-summary cache. Within one send the
// order is delivery then invalidation; across sends nothing is guaranteed.
func (r *Relay) handleSend(subject string, data []byte) {
	var ev bus.MessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debugf("[relay] drop malformed %s: %v", subject, err)
		return
	}
	m := ev.Message
	if m.ID == 0 || m.SenderID == 0 || m.RecipientID == 0 {
		logger.Debugf("[relay] drop %s with missing ids", subject)
		return
	}

	frame := wire.Marshal(wire.FrameMessageSend, wire.MessagePayload{Message: m})
	r.deliver(m.RecipientID, frame)
	r.deliver(m.SenderID, frame)
	r.deliver(m.RecipientID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: m.SenderID}))
	r.deliver(m.SenderID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: m.RecipientID}))
}

func (r *Relay) handleEdit(subject string, data []byte) {
	var ev bus.MessageEditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debugf("[relay] drop malformed %s: %v", subject, err)
		return
	}
	if ev.ID == 0 || ev.SenderID == 0 || ev.RecipientID == 0 {
		logger.Debugf("[relay] drop %s with missing ids", subject)
		return
	}

	frame := wire.Marshal(wire.FrameMessageEdited, wire.MessageEditedPayload{
		ID: ev.ID, SenderID: ev.SenderID, RecipientID: ev.RecipientID, Body: ev.Body,
	})
	r.deliver(ev.RecipientID, frame)
	r.deliver(ev.SenderID, frame)
	// The edited message may be the conversation's last one.
	r.deliver(ev.RecipientID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: ev.SenderID}))
	r.deliver(ev.SenderID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: ev.RecipientID}))
}

func (r *Relay) handleDelete(subject string, data []byte) {
	var ev bus.MessageDeleteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debugf("[relay] drop malformed %s: %v", subject, err)
		return
	}
	if ev.ID == 0 || ev.SenderID == 0 || ev.RecipientID == 0 {
		logger.Debugf("[relay] drop %s with missing ids", subject)
		return
	}

	frame := wire.Marshal(wire.FrameMessageDelete, wire.MessageDeletedPayload{
		ID: ev.ID, SenderID: ev.SenderID, RecipientID: ev.RecipientID,
	})
	r.deliver(ev.RecipientID, frame)
	r.deliver(ev.SenderID, frame)
	r.deliver(ev.RecipientID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: ev.SenderID}))
	r.deliver(ev.SenderID, wire.Marshal(wire.FrameConvTouched, wire.ConvTouchedPayload{PeerID: ev.RecipientID}))
}

// handleNotify pushes to the target's connection, or fans out to every bound
// connection for broadcast rows. Delivery order relative to the polling feed
// is not guaranteed; clients merge by id.
func (r *Relay) handleNotify(subject string, data []byte) {
	var ev bus.NotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debugf("[relay] drop malformed %s: %v", subject, err)
		return
	}
	n := ev.Notification
	if n.ID == 0 {
		logger.Debugf("[relay] drop %s with missing id", subject)
		return
	}

	frame := wire.Marshal(wire.FrameNotification, wire.NotificationPayload{Notification: n})
	if n.Broadcast() {
		r.fan.Broadcast(r.reg.Snapshot(), frame)
		return
	}
	r.deliver(*n.TargetID, frame)
}

func (r *Relay) deliver(userID int64, frame []byte) {
	if c, ok := r.reg.Get(userID); ok {
		c.Queue(frame)
	}
}
