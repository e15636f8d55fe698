package xsk

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// owner tracks which side of the ring protocol currently holds a frame.
// This bookkeeping is inert: the data path never reads it to make a
// decision, only to record a transition, so tests can assert invariant 2
// (no frame index is ever double-owned) without it becoming a second
// source of truth the hot path must keep consistent.
type owner int

const (
	ownerFree owner = iota
	ownerPendingRX
	ownerFilled
	ownerPendingTX
)

func (o owner) String() string {
	switch o {
	case ownerFree:
		return "free"
	case ownerPendingRX:
		return "pending_rx"
	case ownerFilled:
		return "filled"
	case ownerPendingTX:
		return "pending_tx"
	default:
		return "unknown"
	}
}

// Umem is the registered region of frame-sized slots shared between the
// user program and the rings, plus the fill and completion rings that
// move frame ownership between them.
type Umem struct {
	data      []byte
	frameSize uint32
	numFrames uint32
	headroom  uint32
	props     Props

	fill *Ring[uint32]
	comp *Ring[uint32]

	refcount atomic.Int32

	mu     sync.Mutex
	owners []owner
}

// NewUmem registers a umem of numFrames frames of frameSize bytes, with
// the given headroom reserved at the front of each frame, and a fill and
// completion ring of the given lengths.
func NewUmem(frameSize, numFrames, headroom, fillRingLen, compRingLen uint32) (*Umem, error) {
	if !isPowerOfTwoXSK(frameSize) {
		return nil, newErr("new_umem", KindInvalid, fmt.Sprintf("frame_size %d must be a power of two", frameSize))
	}
	if numFrames == 0 {
		return nil, newErr("new_umem", KindInvalid, "num_frames must be nonzero")
	}
	if headroom >= frameSize {
		return nil, newErr("new_umem", KindInvalid, fmt.Sprintf("headroom %d must be less than frame_size %d", headroom, frameSize))
	}

	fill, err := NewIndexRing(fillRingLen)
	if err != nil {
		return nil, wrapErr("new_umem", KindInvalid, "fill ring", err)
	}
	comp, err := NewIndexRing(compRingLen)
	if err != nil {
		return nil, wrapErr("new_umem", KindInvalid, "completion ring", err)
	}

	props := Props{FrameSize: frameSize, NumFrames: numFrames}
	fill.BindProps(&props)
	comp.BindProps(&props)

	regionSize := roundUpToPageSize(uint64(frameSize) * uint64(numFrames))

	u := &Umem{
		data:      make([]byte, regionSize),
		frameSize: frameSize,
		numFrames: numFrames,
		headroom:  headroom,
		props:     props,
		fill:      fill,
		comp:      comp,
		owners:    make([]owner, numFrames),
	}
	u.refcount.Store(1)
	return u, nil
}

func isPowerOfTwoXSK(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// roundUpToPageSize pads n up to the next multiple of the system page
// size, matching the page alignment a real mmap(2)-backed umem region
// would get from the kernel.
func roundUpToPageSize(n uint64) uint64 {
	page := uint64(unix.Getpagesize())
	if n == 0 {
		return page
	}
	if rem := n % page; rem != 0 {
		n += page - rem
	}
	return n
}

// Props returns the frame-size/frame-count snapshot rx/tx rings bind at
// bind time.
func (u *Umem) Props() *Props {
	return &u.props
}

// FillRing returns the ring the user side donates free frame indices to
// for rx.
func (u *Umem) FillRing() *Ring[uint32] {
	return u.fill
}

// CompRing returns the ring the kernel side (simulated) returns
// transmitted frame indices to.
func (u *Umem) CompRing() *Ring[uint32] {
	return u.comp
}

// FrameSize returns the fixed per-frame size.
func (u *Umem) FrameSize() uint32 {
	return u.frameSize
}

// NumFrames returns the total frame count.
func (u *Umem) NumFrames() uint32 {
	return u.numFrames
}

// Headroom returns the bytes reserved at the front of every frame.
func (u *Umem) Headroom() uint32 {
	return u.headroom
}

// FrameData returns the full frame-sized slice backing the given index.
func (u *Umem) FrameData(index uint32) ([]byte, error) {
	if index >= u.numFrames {
		return nil, newErr("frame_data", KindInvalid, fmt.Sprintf("index %d out of range (num_frames=%d)", index, u.numFrames))
	}
	start := uint64(index) * uint64(u.frameSize)
	return u.data[start : start+uint64(u.frameSize)], nil
}

// Ref increments the shared-umem refcount and returns the new count.
func (u *Umem) Ref() int32 {
	return u.refcount.Add(1)
}

// Unref decrements the shared-umem refcount and returns the new count.
func (u *Umem) Unref() int32 {
	return u.refcount.Add(-1)
}

// Refcount returns the current shared-umem refcount.
func (u *Umem) Refcount() int32 {
	return u.refcount.Load()
}

// SetOwner records that index has transitioned to state. Test-only
// bookkeeping; never consulted by the data path.
func (u *Umem) SetOwner(index uint32, state owner) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if int(index) < len(u.owners) {
		u.owners[index] = state
	}
}

// Owner returns the last recorded owner state for index.
func (u *Umem) Owner(index uint32) owner {
	u.mu.Lock()
	defer u.mu.Unlock()
	if int(index) >= len(u.owners) {
		return ownerFree
	}
	return u.owners[index]
}
