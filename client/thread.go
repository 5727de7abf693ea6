package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"CityOps/model"
	"CityOps/tools/safe"
	"CityOps/wire"
)

type threadAPI interface {
	Thread(ctx context.Context, peerID int64) ([]model.Message, error)
	SendMessage(ctx context.Context, recipientID int64, body string) (model.Message, error)
	EditMessage(ctx context.Context, id int64, body string) (model.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	MarkThreadRead(ctx context.Context, peerID int64) error
}

type socketEmitter interface {
	EmitMessageSend(m model.Message)
	EmitMessageEdited(p wire.MessageEditedPayload)
	EmitMessageDeleted(p wire.MessageDeletedPayload)
}

// Thread is the surface for one conversation. Local state is fed by two
// producers: poll snapshots (idempotent replace) and push deltas; a snapshot
// always wins over whatever deltas accumulated before it.
type Thread struct {
	api       threadAPI
	em        socketEmitter
	bus       *eventBus
	viewer    int64
	peer      int64
	pollEvery time.Duration

	mu     sync.Mutex
	state  State
	msgs   []model.Message
	gen    uint64
	tempID int64
	closed bool

	cancels  []func()
	stopCh   chan struct{}
	stopOnce sync.Once

	onChange func()
	onError  func(error)
}

// Thread opens the surface for a peer; call Start to begin syncing.
func (c *Client) Thread(peerID int64) *Thread {
	return newThread(c.rest, c, c.bus, c.cfg.UserID, peerID, c.cfg.PollEvery)
}

func newThread(api threadAPI, em socketEmitter, bus *eventBus, viewer, peer int64, pollEvery time.Duration) *Thread {
	return &Thread{
		api:       api,
		em:        em,
		bus:       bus,
		viewer:    viewer,
		peer:      peer,
		pollEvery: pollEvery,
		state:     Idle,
		stopCh:    make(chan struct{}),
	}
}

// OnChange registers the render callback; set before Start.
func (t *Thread) OnChange(fn func()) { t.onChange = fn }

// OnError receives transient REST failures after their rollback ran.
func (t *Thread) OnError(fn func(error)) { t.onError = fn }

func (t *Thread) Start(ctx context.Context) {
	t.mu.Lock()
	t.state = Loading
	t.mu.Unlock()

	t.cancels = append(t.cancels,
		t.bus.onMessageNew(func(m model.Message) {
			if t.inThread(m.SenderID, m.RecipientID) {
				t.applyNew(m)
			}
		}),
		t.bus.onMessageEdited(func(p wire.MessageEditedPayload) {
			if t.inThread(p.SenderID, p.RecipientID) {
				t.applyEdit(p.ID, p.Body)
			}
		}),
		t.bus.onMessageDeleted(func(p wire.MessageDeletedPayload) {
			if t.inThread(p.SenderID, p.RecipientID) {
				t.applyDelete(p.ID)
			}
		}),
	)

	t.refresh(ctx)
	safe.Go(func() { t.pollLoop() })
}

func (t *Thread) Close() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.stopCh)
		for _, cancel := range t.cancels {
			cancel()
		}
	})
}

func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Send applies an optimistic placeholder, persists over REST, then swaps the
// placeholder for the authoritative row and announces it on the socket.
func (t *Thread) Send(ctx context.Context, body string) error {
	t.mu.Lock()
	t.tempID--
	temp := model.Message{
		ID:       t.tempID,
		SenderID: t.viewer, RecipientID: t.peer,
		Body: body, SentAt: time.Now(),
	}
	t.mu.Unlock()

	var persisted model.Message
	err := runCommand(command{
		apply:      func() { t.upsert(temp) },
		compensate: func() { t.remove(temp.ID) },
	}, func() error {
		var err error
		persisted, err = t.api.SendMessage(ctx, t.peer, body)
		return err
	}, t.onError)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.removeLocked(temp.ID)
	t.upsertLocked(persisted)
	t.mu.Unlock()
	t.notify()

	t.em.EmitMessageSend(persisted)
	return nil
}

// Edit rewrites the body optimistically and rolls back to the pre-edit
// snapshot if the REST call rejects.
func (t *Thread) Edit(ctx context.Context, id int64, body string) error {
	t.mu.Lock()
	prev, ok := t.findLocked(id)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	var persisted model.Message
	err := runCommand(command{
		apply:      func() { t.applyEdit(id, body) },
		compensate: func() { t.upsert(prev) },
	}, func() error {
		var err error
		persisted, err = t.api.EditMessage(ctx, id, body)
		return err
	}, t.onError)
	if err != nil {
		return err
	}

	t.upsert(persisted)
	t.em.EmitMessageEdited(wire.MessageEditedPayload{
		ID: persisted.ID, SenderID: persisted.SenderID,
		RecipientID: persisted.RecipientID, Body: persisted.Body,
	})
	return nil
}

// Delete removes the message locally first; a REST failure restores it
// unchanged from before the attempt.
func (t *Thread) Delete(ctx context.Context, id int64) error {
	t.mu.Lock()
	prev, ok := t.findLocked(id)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	err := runCommand(command{
		apply:      func() { t.remove(id) },
		compensate: func() { t.upsert(prev) },
	}, func() error {
		return t.api.DeleteMessage(ctx, id)
	}, t.onError)
	if err != nil {
		return err
	}

	t.em.EmitMessageDeleted(wire.MessageDeletedPayload{
		ID: prev.ID, SenderID: prev.SenderID, RecipientID: prev.RecipientID,
	})
	return nil
}

// MarkRead flips the read flag on everything the peer sent, optimistically.
func (t *Thread) MarkRead(ctx context.Context) error {
	t.mu.Lock()
	snapshot := make([]model.Message, len(t.msgs))
	copy(snapshot, t.msgs)
	t.mu.Unlock()

	return runCommand(command{
		apply: func() {
			t.mu.Lock()
			for i := range t.msgs {
				if t.msgs[i].SenderID == t.peer {
					t.msgs[i].Read = true
				}
			}
			t.mu.Unlock()
			t.notify()
		},
		compensate: func() {
			t.mu.Lock()
			t.msgs = snapshot
			t.mu.Unlock()
			t.notify()
		},
	}, func() error {
		return t.api.MarkThreadRead(ctx, t.peer)
	}, t.onError)
}

// refresh replaces local state with the authoritative snapshot. A response
// arriving after a newer refresh started (or after Close) is discarded.
func (t *Thread) refresh(ctx context.Context) {
	t.mu.Lock()
	t.gen++
	g := t.gen
	t.mu.Unlock()

	msgs, err := t.api.Thread(ctx, t.peer)
	if err != nil {
		if t.onError != nil {
			t.onError(err)
		}
		return
	}

	t.mu.Lock()
	if t.closed || g != t.gen {
		t.mu.Unlock()
		return
	}
	t.msgs = msgs
	t.state = Ready
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) pollLoop() {
	ticker := time.NewTicker(t.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.refresh(context.Background())
		}
	}
}

func (t *Thread) inThread(senderID, recipientID int64) bool {
	return (senderID == t.peer && recipientID == t.viewer) ||
		(senderID == t.viewer && recipientID == t.peer)
}

func (t *Thread) applyNew(m model.Message) {
	t.upsert(m)
}

func (t *Thread) applyEdit(id int64, body string) {
	t.mu.Lock()
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs[i].Body = body
			t.msgs[i].Edited = true
			break
		}
	}
	t.state = Ready
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) applyDelete(id int64) {
	t.remove(id)
}

// upsert keeps the list a set keyed by id, ordered by sent-at; the echo of a
// message we already show replaces it in place.
func (t *Thread) upsert(m model.Message) {
	t.mu.Lock()
	t.upsertLocked(m)
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) upsertLocked(m model.Message) {
	for i := range t.msgs {
		if t.msgs[i].ID == m.ID {
			t.msgs[i] = m
			t.state = Ready
			return
		}
	}
	t.msgs = append(t.msgs, m)
	sort.SliceStable(t.msgs, func(i, j int) bool {
		if t.msgs[i].SentAt.Equal(t.msgs[j].SentAt) {
			return t.msgs[i].ID < t.msgs[j].ID
		}
		return t.msgs[i].SentAt.Before(t.msgs[j].SentAt)
	})
	t.state = Ready
}

func (t *Thread) remove(id int64) {
	t.mu.Lock()
	t.removeLocked(id)
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) removeLocked(id int64) {
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			break
		}
	}
	t.state = Ready
}

func (t *Thread) findLocked(id int64) (model.Message, bool) {
	for _, m := range t.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

func (t *Thread) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
