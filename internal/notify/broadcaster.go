package notify

import (
	"sync"

	"github.com/vadiminshakov/skinwatch/internal/domain"
)

// Broadcaster fans out dispatched batches to all subscribers via buffered channels.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.Batch]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[chan domain.Batch]struct{}),
		buffer: buffer,
	}
}

// Publish sends the batch to all subscribers, dropping if a reader is slow.
func (b *Broadcaster) Publish(batch domain.Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- batch:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives batches until Unsubscribe is called.
func (b *Broadcaster) Subscribe() chan domain.Batch {
	ch := make(chan domain.Batch, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan domain.Batch) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
