package xsk

import "encoding/binary"

// Well-known mmap offsets for the four rings, matching spec.md §6's
// fixed memory layout exactly. In a real AF_XDP binding these would be
// page offsets passed to mmap(2); here they select which ring Mmap
// serializes.
const (
	OffsetRxRing   uint64 = 0x0
	OffsetTxRing   uint64 = 0x80000000
	OffsetFillRing uint64 = 0x100000000
	OffsetCompRing uint64 = 0x180000000
)

// PollEvents reports readiness the way poll(2) would: Readable means the
// rx ring has at least one descriptor to consume, Writable means the tx
// ring has room for at least one more.
type PollEvents struct {
	Readable bool
	Writable bool
}

// Poll reports the socket's current readiness without blocking. A
// socket with no rx ring is never readable; one with no tx ring is
// never writable.
func (s *Socket) Poll() PollEvents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PollEvents{
		Readable: s.rx != nil && !s.rx.IsEmpty(),
		Writable: s.tx != nil && !s.tx.IsFull(),
	}
}

// Mmap returns a byte-serialized snapshot of the ring at offset, keyed
// by the four well-known offsets above. There is no real kernel page
// table backing this: the returned slice is a snapshot of ring memory
// at the moment of the call, not a live mapping, since this package has
// no real syscall boundary to cross.
func (s *Socket) Mmap(offset uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch offset {
	case OffsetFillRing:
		return indexRingBytes(s.umem.fill), nil
	case OffsetCompRing:
		return indexRingBytes(s.umem.comp), nil
	case OffsetRxRing:
		if s.rx == nil {
			return nil, newErr("mmap", KindInvalid, "rx ring not configured")
		}
		return descRingBytes(s.rx), nil
	case OffsetTxRing:
		if s.tx == nil {
			return nil, newErr("mmap", KindInvalid, "tx ring not configured")
		}
		return descRingBytes(s.tx), nil
	default:
		return nil, newErr("mmap", KindInvalid, "unknown ring offset")
	}
}

func indexRingBytes(r *Ring[uint32]) []byte {
	buf := make([]byte, r.cap*4)
	for i := uint32(0); i < r.cap; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], r.slots[i])
	}
	return buf
}

func descRingBytes(r *Ring[Descriptor]) []byte {
	const stride = 12
	buf := make([]byte, r.cap*stride)
	for i := uint32(0); i < r.cap; i++ {
		d := r.slots[i]
		base := i * stride
		binary.LittleEndian.PutUint32(buf[base:base+4], d.Index)
		binary.LittleEndian.PutUint32(buf[base+4:base+8], d.Length)
		binary.LittleEndian.PutUint32(buf[base+8:base+12], d.Offset)
	}
	return buf
}
