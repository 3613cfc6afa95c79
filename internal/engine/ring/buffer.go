package ring

import (
	"sync"
	"time"

	"discord-automod/internal/models"
)

const DefaultSize = 1024 * 4

// Batch is every content event extracted from one gateway delivery
type Batch struct {
	Type     string
	Events   []*models.ContentEvent
	Received time.Time
}

// Buffer is a bounded multi-producer multi-consumer ring of batches.
// Producers never block: Push reports false when the ring is full and the
// caller drops the delivery.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	data []Batch
	mask uint64
	head uint64 // next write
	tail uint64 // next read

	closed bool
}

// New creates a ring holding at least size batches, rounded up to a power of 2
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	n := 1
	for n < size {
		n <<= 1
	}
	r := &Buffer{
		data: make([]Batch, n),
		mask: uint64(n - 1),
	}
	r.notEmpty = sync.NewCond(&r.mu)
	return r
}

// Push adds a batch. Returns false if the ring is full or closed.
func (r *Buffer) Push(b Batch) bool {
	r.mu.Lock()
	if r.closed || r.head-r.tail > r.mask {
		r.mu.Unlock()
		return false
	}
	r.data[r.head&r.mask] = b
	r.head++
	r.mu.Unlock()

	r.notEmpty.Signal()
	return true
}

// Pop blocks until a batch is available. It returns false once the ring is
// closed and drained.
func (r *Buffer) Pop() (Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.tail == r.head {
		if r.closed {
			return Batch{}, false
		}
		r.notEmpty.Wait()
	}

	slot := &r.data[r.tail&r.mask]
	b := *slot
	*slot = Batch{} // release event pointers
	r.tail++
	return b, true
}

func (r *Buffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}

func (r *Buffer) Cap() int {
	return len(r.data)
}

// Close stops accepting batches and wakes every waiting consumer.
// Batches already queued are still handed out.
func (r *Buffer) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notEmpty.Broadcast()
}
