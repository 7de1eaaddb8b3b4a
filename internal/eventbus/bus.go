// Package eventbus fans appender outcomes out to in-process observers
// (metrics, the periodic report, debug logging).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the appender.
const (
	TypeSent    = "appender.sent"
	TypeDropped = "appender.dropped"
	TypeFailed  = "appender.failed"
)

// Event is a small in-memory signal.
//
// Publish never blocks: a subscriber whose buffer is full misses the event
// and the bus counts it in Dropped.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Outcome is the Data of every appender.* event.
type Outcome struct {
	Appender  string
	Recipient string
	Level     string
	Color     string
	// Took is the dispatcher latency; zero for drops.
	Took time.Duration
	Err  error
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// The read lock keeps unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped reports how many deliveries were skipped because a subscriber
// was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }
