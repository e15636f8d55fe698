package xsk

import (
	"fmt"
	"sync/atomic"
)

// cacheLinePad separates the producer and consumer counters so that a core
// spinning on one doesn't thrash the cache line holding the other.
const cacheLinePad = 64

// Descriptor is the unit carried by the rx and tx rings: a frame index plus
// the payload's location within that frame.
type Descriptor struct {
	Index  uint32
	Length uint32
	Offset uint32
}

// Props is the umem snapshot broadcast to a socket's rings so ring
// operations can validate frame indices and descriptor bounds without a
// back-reference to the umem itself.
type Props struct {
	FrameSize uint32
	NumFrames uint32
}

type validator[T any] func(v T, props *Props) bool

func validateIndex(v uint32, props *Props) bool {
	if props == nil {
		return true
	}
	return v < props.NumFrames
}

func validateDescriptor(d Descriptor, props *Props) bool {
	if props == nil {
		return true
	}
	return d.Index < props.NumFrames && d.Offset+d.Length <= props.FrameSize
}

// Ring is a bounded SPSC ring of fixed-size slots. One producer and one
// consumer, coordinated solely through the producer/consumer counters:
// the producer writes slot contents then publishes by advancing its
// counter (a release); the consumer reads the producer counter (an
// acquire) before reading slots, and publishes its own counter after
// reading (a release). Go's atomic package gives sequentially consistent
// loads and stores on the counters, which is strictly stronger than the
// release/acquire pairing the protocol requires.
//
// Counters are free-running uint32s; every comparison relies on unsigned
// wraparound arithmetic, so a ring survives 2^32 productions without any
// special-case reset.
type Ring[T any] struct {
	slots []T
	mask  uint32
	cap   uint32

	producer atomic.Uint32
	_        [cacheLinePad - 4]byte
	consumer atomic.Uint32
	_        [cacheLinePad - 4]byte

	props     *Props
	validate  validator[T]
	nbInvalid atomic.Uint64
}

func newRing[T any](capacity uint32, validate validator[T]) (*Ring[T], error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, newErr("new_ring", KindInvalid, fmt.Sprintf("capacity %d must be a nonzero power of two", capacity))
	}
	return &Ring[T]{
		slots:    make([]T, capacity),
		mask:     capacity - 1,
		cap:      capacity,
		validate: validate,
	}, nil
}

// NewIndexRing builds a fill or completion ring: slots are bare frame
// indices, validated only against the bound props' frame count.
func NewIndexRing(capacity uint32) (*Ring[uint32], error) {
	return newRing[uint32](capacity, validateIndex)
}

// NewDescRing builds an rx or tx ring: slots are {index, length, offset}
// descriptors, validated against both frame count and frame size.
func NewDescRing(capacity uint32) (*Ring[Descriptor], error) {
	return newRing[Descriptor](capacity, validateDescriptor)
}

// BindProps attaches the umem snapshot this ring should validate
// descriptors against. Called once, at bind time.
func (r *Ring[T]) BindProps(props *Props) {
	r.props = props
}

// Capacity returns the ring's fixed slot count.
func (r *Ring[T]) Capacity() uint32 {
	return r.cap
}

// Depth returns producer - consumer under unsigned wraparound arithmetic:
// the number of slots currently owned by the consumer side.
func (r *Ring[T]) Depth() uint32 {
	return r.producer.Load() - r.consumer.Load()
}

// IsEmpty reports producer == consumer.
func (r *Ring[T]) IsEmpty() bool {
	return r.Depth() == 0
}

// IsFull reports producer - consumer == capacity.
func (r *Ring[T]) IsFull() bool {
	return r.Depth() == r.cap
}

// NbInvalid returns the monotonic count of descriptors rejected by
// validation on this ring.
func (r *Ring[T]) NbInvalid() uint64 {
	return r.nbInvalid.Load()
}

// Reserve reports whether n free slots are available to the producer,
// without reserving anything: a point-in-time check only.
func (r *Ring[T]) Reserve(n uint32) bool {
	return r.cap-r.Depth() >= n
}

func (r *Ring[T]) slotAt(i uint32) *T {
	return &r.slots[i&r.mask]
}

// ProduceOne writes v into the next producer slot and publishes it.
// Returns false (slot untouched) if the ring is full.
func (r *Ring[T]) ProduceOne(v T) bool {
	return r.ProduceBatch([]T{v})
}

// ProduceBatch writes vals starting at the current producer position and
// publishes all of them as a single advance. Returns false, writing
// nothing, if the ring cannot hold len(vals) slots.
func (r *Ring[T]) ProduceBatch(vals []T) bool {
	n := uint32(len(vals))
	if !r.Reserve(n) {
		return false
	}
	p := r.producer.Load()
	for i, v := range vals {
		*r.slotAt(p + uint32(i)) = v
	}
	r.producer.Store(p + n) // release
	return true
}

// PeekOne returns the next valid slot without consuming it. Descriptors
// that fail validation are never returned: they are counted in
// NbInvalid and their slot is immediately and permanently consumed,
// since there is nothing useful a caller could do with them. PeekOne
// loops until it finds a valid slot or the ring is empty.
func (r *Ring[T]) PeekOne() (T, bool) {
	var zero T
	for {
		c := r.consumer.Load()
		p := r.producer.Load() // acquire
		if c == p {
			return zero, false
		}
		v := *r.slotAt(c)
		if r.validate != nil && !r.validate(v, r.props) {
			r.nbInvalid.Add(1)
			r.consumer.Store(c + 1) // release: permanently drop the invalid slot
			continue
		}
		return v, true
	}
}

// Peek returns up to n valid slots starting at the consumer position,
// without advancing past any of them. Invalid slots encountered at the
// very front of the window are skipped and permanently consumed, exactly
// as in PeekOne; an invalid slot discovered after at least one pending
// valid slot cannot yet be skipped (the consumer hasn't reached it) and
// simply ends the batch early.
func (r *Ring[T]) Peek(n uint32) []T {
	out := make([]T, 0, n)
	var offset uint32
	for uint32(len(out)) < n {
		c := r.consumer.Load()
		p := r.producer.Load() // acquire
		idx := c + offset
		if idx == p {
			break
		}
		v := *r.slotAt(idx)
		if r.validate != nil && !r.validate(v, r.props) {
			if offset != 0 {
				break
			}
			r.nbInvalid.Add(1)
			r.consumer.Store(c + 1) // release
			continue
		}
		out = append(out, v)
		offset++
	}
	return out
}

// Discard advances the consumer counter past n previously peeked slots,
// completing the handoff PeekOne/Peek began.
func (r *Ring[T]) Discard(n uint32) {
	r.consumer.Store(r.consumer.Load() + n) // release
}
