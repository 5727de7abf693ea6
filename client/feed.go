package client

import (
	"context"
	"sync"
	"time"

	"CityOps/model"
	"CityOps/tools/safe"
	"CityOps/wire"
)

type feedAPI interface {
	Summaries(ctx context.Context) ([]model.ConversationSummary, error)
}

// Feed is the conversation-list surface. Pushed messages bump the matching
// row immediately; everything else (edits, deletes, invalidations from the
// peer's own actions) folds in on the next snapshot, which replaces local
// state wholesale.
type Feed struct {
	api       feedAPI
	bus       *eventBus
	viewer    int64
	pollEvery time.Duration

	mu     sync.Mutex
	state  State
	rows   []model.ConversationSummary
	gen    uint64
	closed bool

	cancels  []func()
	stopCh   chan struct{}
	stopOnce sync.Once

	onChange func()
	onError  func(error)
}

func (c *Client) Feed() *Feed {
	return newFeed(c.rest, c.bus, c.cfg.UserID, c.cfg.PollEvery)
}

func newFeed(api feedAPI, bus *eventBus, viewer int64, pollEvery time.Duration) *Feed {
	return &Feed{
		api:       api,
		bus:       bus,
		viewer:    viewer,
		pollEvery: pollEvery,
		state:     Idle,
		stopCh:    make(chan struct{}),
	}
}

func (f *Feed) OnChange(fn func()) { f.onChange = fn }

func (f *Feed) OnError(fn func(error)) { f.onError = fn }

func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	f.state = Loading
	f.mu.Unlock()

	f.cancels = append(f.cancels,
		f.bus.onMessageNew(func(m model.Message) { f.bump(m) }),
		f.bus.onConvTouched(func(p wire.ConvTouchedPayload) {
			f.refresh(context.Background())
		}),
	)

	f.refresh(ctx)
	safe.Go(func() { f.pollLoop() })
}

func (f *Feed) Close() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.stopCh)
		for _, cancel := range f.cancels {
			cancel()
		}
	})
}

func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) Conversations() []model.ConversationSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ConversationSummary, len(f.rows))
	copy(out, f.rows)
	return out
}

// TotalUnread sums the per-peer counts; drives the messaging badge.
func (f *Feed) TotalUnread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.rows {
		total += r.Unread
	}
	return total
}

// ClearUnread zeroes a peer's count locally after the viewer opens the
// thread; the server-side receipt write belongs to Thread.MarkRead.
func (f *Feed) ClearUnread(peerID int64) {
	f.mu.Lock()
	for i := range f.rows {
		if f.rows[i].PeerID == peerID {
			f.rows[i].Unread = 0
			break
		}
	}
	f.mu.Unlock()
	f.notify()
}

// bump moves the touched conversation to the top with the new preview. An
// incoming body from a peer raises its unread count; the viewer's own echo
// does not.
func (f *Feed) bump(m model.Message) {
	peer := m.SenderID
	incoming := true
	if m.SenderID == f.viewer {
		peer = m.RecipientID
		incoming = false
	}

	f.mu.Lock()
	idx := -1
	for i := range f.rows {
		if f.rows[i].PeerID == peer {
			idx = i
			break
		}
	}
	if idx == -1 {
		// First exchange with this peer; the name arrives with the next
		// snapshot.
		f.rows = append([]model.ConversationSummary{{
			PeerID: peer, LastBody: m.Body, LastAt: m.SentAt,
		}}, f.rows...)
		if incoming {
			f.rows[0].Unread = 1
		}
		f.mu.Unlock()
		f.notify()
		return
	}
	row := f.rows[idx]
	row.LastBody = m.Body
	row.LastAt = m.SentAt
	if incoming {
		row.Unread++
	}
	f.rows = append(f.rows[:idx], f.rows[idx+1:]...)
	f.rows = append([]model.ConversationSummary{row}, f.rows...)
	f.mu.Unlock()
	f.notify()
}

func (f *Feed) refresh(ctx context.Context) {
	f.mu.Lock()
	f.gen++
	g := f.gen
	f.mu.Unlock()

	rows, err := f.api.Summaries(ctx)
	if err != nil {
		if f.onError != nil {
			f.onError(err)
		}
		return
	}

	f.mu.Lock()
	if f.closed || g != f.gen {
		f.mu.Unlock()
		return
	}
	f.rows = rows
	f.state = Ready
	f.mu.Unlock()
	f.notify()
}

func (f *Feed) pollLoop() {
	ticker := time.NewTicker(f.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.refresh(context.Background())
		}
	}
}

func (f *Feed) notify() {
	if f.onChange != nil {
		f.onChange()
	}
}
