// Package buffer implements the per-direction growable byte buffer used by
// the forwarding engine to hold data read from one side of a relay pair
// awaiting a write to the other side.
package buffer

// rungs is the capacity growth ladder: a buffer starts at rungs[0] and only
// grows to the next rung when a read has filled the previously prepared
// region exactly, up to Max.
var rungs = []int{1024, 4096, 16384, 65536}

// DefaultMax is the high-water mark used when a ForwardingBuffer is created
// with NewDefault.
const DefaultMax = 128 * 1024

// ForwardingBuffer is a growable byte queue with a bounded capacity. It is
// not safe for concurrent use; callers (internal/pair) serialize access with
// their own mutex.
type ForwardingBuffer struct {
	storage  []byte
	size     int
	capacity int
	max      int
}

// New creates a ForwardingBuffer that grows up to max bytes.
func New(max int) *ForwardingBuffer {
	cap0 := rungs[0]
	if cap0 > max {
		cap0 = max
	}
	return &ForwardingBuffer{
		storage:  make([]byte, cap0),
		capacity: cap0,
		max:      max,
	}
}

// NewDefault creates a ForwardingBuffer with the relay's default high-water
// mark (128 KiB).
func NewDefault() *ForwardingBuffer {
	return New(DefaultMax)
}

// Prepare returns a contiguous writable region sized capacity-size. When
// grow is true and the buffer is already full at its current capacity, the
// capacity is expanded to the next rung (bounded by max) before the region
// is computed. Prepare never returns a non-empty region once the buffer has
// reached max with size==max; callers must check AtHighWater first.
func (b *ForwardingBuffer) Prepare(grow bool) []byte {
	if grow && b.size == b.capacity {
		b.growOnce()
	}
	return b.storage[b.size:b.capacity]
}

func (b *ForwardingBuffer) growOnce() {
	next := b.max
	for _, rung := range rungs {
		if rung > b.capacity {
			next = rung
			break
		}
	}
	if next > b.max {
		next = b.max
	}
	if next <= b.capacity {
		return
	}
	grown := make([]byte, next)
	copy(grown, b.storage[:b.size])
	b.storage = grown
	b.capacity = next
}

// Commit advances size by n, which must be at most len(Prepare(...)).
func (b *ForwardingBuffer) Commit(n int) {
	b.size += n
}

// Data returns the readable region: bytes committed but not yet consumed.
func (b *ForwardingBuffer) Data() []byte {
	return b.storage[:b.size]
}

// Consume removes the first n bytes of Data, shifting any remainder to the
// front of the buffer. n must be at most Len().
func (b *ForwardingBuffer) Consume(n int) {
	if n >= b.size {
		b.size = 0
		return
	}
	copy(b.storage, b.storage[n:b.size])
	b.size -= n
}

// Len reports the number of readable bytes currently buffered.
func (b *ForwardingBuffer) Len() int {
	return b.size
}

// AtHighWater reports whether the buffer has reached its high-water mark
// (size == max); the owning side's read interest must be disabled while
// this holds.
func (b *ForwardingBuffer) AtHighWater() bool {
	return b.size >= b.max
}

// Empty reports whether the buffer holds no data.
func (b *ForwardingBuffer) Empty() bool {
	return b.size == 0
}

// Max returns the buffer's configured high-water mark.
func (b *ForwardingBuffer) Max() int {
	return b.max
}
