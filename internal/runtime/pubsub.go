package runtime

import (
	"sync"
	"time"
)

// #region updates
// Update is one published organism event. Kind is "turn", "tick", or
// "autotalk".
type Update struct {
	Kind   string             `json:"kind"`
	TurnID string             `json:"turn_id,omitempty"`
	Reply  string             `json:"reply,omitempty"`
	State  map[string]float64 `json:"state,omitempty"`
	At     time.Time          `json:"at"`
}
// #endregion updates

// #region broker
// broker fans published updates out to subscribers. Slow subscribers drop
// updates rather than stall the turn lock.
type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Update
	nextID int
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Update)}
}

func (b *broker) publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (b *broker) subscribe() (<-chan Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Update, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
// #endregion broker

// Subscribe returns a channel of organism updates and a cancel func. The
// channel closes on cancel or engine shutdown.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	return e.broker.subscribe()
}
