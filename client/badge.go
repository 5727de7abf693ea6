package client

import (
	"context"
	"sync"
	"time"

	"CityOps/model"
	"CityOps/tools/safe"
)

type badgeAPI interface {
	Notifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Badge is the notification surface: the bell list plus its unread counter.
// Pushed notifications prepend (the socket layer already dropped duplicate
// ids); read and dismiss actions apply optimistically and roll back on a
// REST rejection.
type Badge struct {
	api       badgeAPI
	bus       *eventBus
	pollEvery time.Duration

	mu     sync.Mutex
	state  State
	items  []model.Notification
	gen    uint64
	closed bool

	cancels  []func()
	stopCh   chan struct{}
	stopOnce sync.Once

	onChange func()
	onError  func(error)
}

func (c *Client) Badge() *Badge {
	return newBadge(c.rest, c.bus, c.cfg.PollEvery)
}

func newBadge(api badgeAPI, bus *eventBus, pollEvery time.Duration) *Badge {
	return &Badge{
		api:       api,
		bus:       bus,
		pollEvery: pollEvery,
		state:     Idle,
		stopCh:    make(chan struct{}),
	}
}

func (b *Badge) OnChange(fn func()) { b.onChange = fn }

func (b *Badge) OnError(fn func(error)) { b.onError = fn }

func (b *Badge) Start(ctx context.Context) {
	b.mu.Lock()
	b.state = Loading
	b.mu.Unlock()

	b.cancels = append(b.cancels,
		b.bus.onNotification(func(n model.Notification) { b.push(n) }),
	)

	b.refresh(ctx)
	safe.Go(func() { b.pollLoop() })
}

func (b *Badge) Close() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopCh)
		for _, cancel := range b.cancels {
			cancel()
		}
	})
}

func (b *Badge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Badge) Notifications() []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Notification, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Badge) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, it := range b.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// MarkRead flips one notification locally and writes the receipt; the flip
// reverts if the write fails.
func (b *Badge) MarkRead(ctx context.Context, id int64) error {
	b.mu.Lock()
	prev, ok := b.findLocked(id)
	b.mu.Unlock()
	if !ok || prev.Read {
		return nil
	}

	return runCommand(command{
		apply:      func() { b.setRead(id, true) },
		compensate: func() { b.setRead(id, prev.Read) },
	}, func() error {
		return b.api.MarkNotificationRead(ctx, id)
	}, b.onError)
}

// MarkAllRead clears the counter in one shot.
func (b *Badge) MarkAllRead(ctx context.Context) error {
	b.mu.Lock()
	snapshot := make([]model.Notification, len(b.items))
	copy(snapshot, b.items)
	b.mu.Unlock()

	return runCommand(command{
		apply: func() {
			b.mu.Lock()
			for i := range b.items {
				b.items[i].Read = true
			}
			b.mu.Unlock()
			b.notify()
		},
		compensate: func() {
			b.mu.Lock()
			b.items = snapshot
			b.mu.Unlock()
			b.notify()
		},
	}, func() error {
		return b.api.MarkAllNotificationsRead(ctx)
	}, b.onError)
}

// Dismiss removes a notification from the viewer's feed. The server hides a
// broadcast for this viewer only and hard-deletes a private one; locally
// both look the same.
func (b *Badge) Dismiss(ctx context.Context, id int64) error {
	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return nil
	}
	prev := b.items[idx]
	b.mu.Unlock()

	return runCommand(command{
		apply:      func() { b.remove(id) },
		compensate: func() { b.insertAt(prev, idx) },
	}, func() error {
		return b.api.DeleteNotification(ctx, id)
	}, b.onError)
}

// push prepends unless the id is already present.
func (b *Badge) push(n model.Notification) {
	b.mu.Lock()
	for _, it := range b.items {
		if it.ID == n.ID {
			b.mu.Unlock()
			return
		}
	}
	b.items = append([]model.Notification{n}, b.items...)
	b.state = Ready
	b.mu.Unlock()
	b.notify()
}

// insertAt restores a rolled-back notification at its prior position, unless
// a poll already brought it back.
func (b *Badge) insertAt(n model.Notification, idx int) {
	b.mu.Lock()
	for _, it := range b.items {
		if it.ID == n.ID {
			b.mu.Unlock()
			return
		}
	}
	if idx > len(b.items) {
		idx = len(b.items)
	}
	rest := append([]model.Notification{n}, b.items[idx:]...)
	b.items = append(b.items[:idx:idx], rest...)
	b.mu.Unlock()
	b.notify()
}

func (b *Badge) remove(id int64) {
	b.mu.Lock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.notify()
}

func (b *Badge) setRead(id int64, read bool) {
	b.mu.Lock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].Read = read
			break
		}
	}
	b.mu.Unlock()
	b.notify()
}

func (b *Badge) findLocked(id int64) (model.Notification, bool) {
	if i := b.indexLocked(id); i >= 0 {
		return b.items[i], true
	}
	return model.Notification{}, false
}

func (b *Badge) indexLocked(id int64) int {
	for i := range b.items {
		if b.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Badge) refresh(ctx context.Context) {
	b.mu.Lock()
	b.gen++
	g := b.gen
	b.mu.Unlock()

	items, err := b.api.Notifications(ctx)
	if err != nil {
		if b.onError != nil {
			b.onError(err)
		}
		return
	}

	b.mu.Lock()
	if b.closed || g != b.gen {
		b.mu.Unlock()
		return
	}
	b.items = items
	b.state = Ready
	b.mu.Unlock()
	b.notify()
}

func (b *Badge) pollLoop() {
	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.refresh(context.Background())
		}
	}
}

func (b *Badge) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}
