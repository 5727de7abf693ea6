package bus

import (
	"encoding/json"
	"sync"

	"CityOps/tools/errs"
)

// memoryBus dispatches synchronously in-process. Used by tests and by
// deployments that run without a broker.
type memoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

func NewMemory() Bus {
	return &memoryBus{subs: make(map[string]map[int]Handler)}
}

func (b *memoryBus) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(err, "marshal event")
	}
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(subject, data)
	}
	return nil
}

func (b *memoryBus) Subscribe(subject string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errs.New("bus closed")
	}
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[subject][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[subject], id)
	}, nil
}

func (b *memoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
}
