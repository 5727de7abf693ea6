package client

import (
	"sync"

	"CityOps/model"
	"CityOps/wire"
)

// eventBus is the typed registration point for push events. Each On* call
// returns a remove func; registration and payload shapes are checked at
// compile time, so a surface cannot subscribe to a kind it does not handle.
type eventBus struct {
	mu     sync.RWMutex
	nextID int

	presence   map[int]func(wire.PresencePayload)
	msgNew     map[int]func(model.Message)
	msgEdited  map[int]func(wire.MessageEditedPayload)
	msgDeleted map[int]func(wire.MessageDeletedPayload)
	conv       map[int]func(wire.ConvTouchedPayload)
	notif      map[int]func(model.Notification)
}

func newEventBus() *eventBus {
	return &eventBus{
		presence:   make(map[int]func(wire.PresencePayload)),
		msgNew:     make(map[int]func(model.Message)),
		msgEdited:  make(map[int]func(wire.MessageEditedPayload)),
		msgDeleted: make(map[int]func(wire.MessageDeletedPayload)),
		conv:       make(map[int]func(wire.ConvTouchedPayload)),
		notif:      make(map[int]func(model.Notification)),
	}
}

func (b *eventBus) id() int {
	b.nextID++
	return b.nextID
}

func (b *eventBus) onPresence(fn func(wire.PresencePayload)) func() {
	b.mu.Lock()
	id := b.id()
	b.presence[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.presence, id); b.mu.Unlock() }
}

func (b *eventBus) onMessageNew(fn func(model.Message)) func() {
	b.mu.Lock()
	id := b.id()
	b.msgNew[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.msgNew, id); b.mu.Unlock() }
}

func (b *eventBus) onMessageEdited(fn func(wire.MessageEditedPayload)) func() {
	b.mu.Lock()
	id := b.id()
	b.msgEdited[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.msgEdited, id); b.mu.Unlock() }
}

func (b *eventBus) onMessageDeleted(fn func(wire.MessageDeletedPayload)) func() {
	b.mu.Lock()
	id := b.id()
	b.msgDeleted[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.msgDeleted, id); b.mu.Unlock() }
}

func (b *eventBus) onConvTouched(fn func(wire.ConvTouchedPayload)) func() {
	b.mu.Lock()
	id := b.id()
	b.conv[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.conv, id); b.mu.Unlock() }
}

func (b *eventBus) onNotification(fn func(model.Notification)) func() {
	b.mu.Lock()
	id := b.id()
	b.notif[id] = fn
	b.mu.Unlock()
	return func() { b.mu.Lock(); delete(b.notif, id); b.mu.Unlock() }
}

func (b *eventBus) emitPresence(p wire.PresencePayload) {
	for _, fn := range b.presenceHandlers() {
		fn(p)
	}
}

func (b *eventBus) emitMessageNew(m model.Message) {
	b.mu.RLock()
	hs := make([]func(model.Message), 0, len(b.msgNew))
	for _, fn := range b.msgNew {
		hs = append(hs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range hs {
		fn(m)
	}
}

func (b *eventBus) emitMessageEdited(p wire.MessageEditedPayload) {
	b.mu.RLock()
	hs := make([]func(wire.MessageEditedPayload), 0, len(b.msgEdited))
	for _, fn := range b.msgEdited {
		hs = append(hs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range hs {
		fn(p)
	}
}

func (b *eventBus) emitMessageDeleted(p wire.MessageDeletedPayload) {
	b.mu.RLock()
	hs := make([]func(wire.MessageDeletedPayload), 0, len(b.msgDeleted))
	for _, fn := range b.msgDeleted {
		hs = append(hs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range hs {
		fn(p)
	}
}

func (b *eventBus) emitConvTouched(p wire.ConvTouchedPayload) {
	b.mu.RLock()
	hs := make([]func(wire.ConvTouchedPayload), 0, len(b.conv))
	for _, fn := range b.conv {
		hs = append(hs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range hs {
		fn(p)
	}
}

func (b *eventBus) emitNotification(n model.Notification) {
	b.mu.RLock()
	hs := make([]func(model.Notification), 0, len(b.notif))
	for _, fn := range b.notif {
		hs = append(hs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range hs {
		fn(n)
	}
}

func (b *eventBus) presenceHandlers() []func(wire.PresencePayload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]func(wire.PresencePayload), 0, len(b.presence))
	for _, fn := range b.presence {
		hs = append(hs, fn)
	}
	return hs
}
