package xsk

import (
	"errors"
	"fmt"
)

// Send writes payload into a umem frame recycled from the completion
// ring and publishes the resulting descriptor on the tx ring. Returns
// ErrNoBufs if no recycled frame is available and ErrNoSpace if the tx
// ring itself is full.
func (s *Socket) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBound {
		return newErr("send", KindInvalid, "socket is not bound")
	}
	if s.tx == nil {
		return newErr("send", KindNoBufs, "socket has no tx ring")
	}

	index, ok := s.umem.CompRing().PeekOne()
	if !ok {
		return ErrNoBufs
	}

	capacity := s.umem.FrameSize() - s.umem.Headroom()
	if uint32(len(payload)) > capacity {
		return newErr("send", KindMsgSize, "payload exceeds frame capacity")
	}

	data, err := s.umem.FrameData(index)
	if err != nil {
		s.umem.CompRing().Discard(1)
		return wrapErr("send", KindInvalid, "completion ring returned an invalid index", err)
	}

	n := copy(data[s.umem.Headroom():], payload)
	desc := Descriptor{Index: index, Length: uint32(n), Offset: s.umem.Headroom()}
	if !s.tx.ProduceOne(desc) {
		return ErrNoSpace
	}
	s.umem.CompRing().Discard(1)
	s.umem.SetOwner(index, ownerPendingTX)
	return nil
}

// SendBlocking always fails with ErrNotSupported. spec.md §4.5 and §9
// make the non-blocking contract explicit: backpressure is surfaced via
// ErrAgain and Poll, never by admitting a wait primitive. This method
// exists so that a caller reaching for a blocking send gets a clear
// answer instead of no such API at all.
func (s *Socket) SendBlocking(payload []byte) error {
	return newErr("send_blocking", KindNotSupported, "blocking send is not supported; use Send and poll for writability")
}

// TxEngine drains a socket's tx ring in batches and submits each
// descriptor's frame to the bound device, returning successfully
// transmitted frames to the completion ring for reuse.
//
// Grounded on the teacher's SendPacket/addToTxRing/kickTxRing chain;
// collapsed into one Flush call that peeks up to the configured batch
// size, submits each, and discards only the descriptors it actually
// consumed, leaving the rest queued for the next Flush.
type TxEngine struct {
	socket *Socket
}

// NewTxEngine returns a TxEngine draining s's tx ring through s's bound device.
func NewTxEngine(s *Socket) *TxEngine {
	return &TxEngine{socket: s}
}

// Flush submits up to the socket's configured tx batch size of queued
// descriptors. Returns the number of frames successfully submitted.
// ErrAgain means the device's own queue was momentarily full or the
// completion ring had no free slot: the caller should retry after
// backpressure clears, and any descriptors that were not yet reached
// remain queued.
func (e *TxEngine) Flush() (sent int, err error) {
	s := e.socket
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBound {
		return 0, newErr("tx_flush", KindInvalid, "socket is not bound")
	}
	if s.tx == nil {
		return 0, newErr("tx_flush", KindNoBufs, "socket has no tx ring")
	}
	if s.device == nil {
		// Sending to a socket with no device attached: distinct from
		// KindNoDev, which the hook table uses for "nothing is bound to
		// this (ifindex, queue) at all" on the rx side.
		return 0, newErr("tx_flush", KindNoXio, "no device bound")
	}
	if !s.device.IsUp() {
		return 0, newErr("tx_flush", KindNetDown, s.ifindex)
	}

	descs := s.tx.Peek(uint32(s.txBatch))
	if len(descs) == 0 {
		return 0, nil
	}

	consumed := 0
	for _, desc := range descs {
		data, ferr := s.umem.FrameData(desc.Index)
		if ferr != nil || desc.Offset+desc.Length > uint32(len(data)) {
			s.stats.TxInvalidDescs++
			consumed++
			continue
		}

		if desc.Length > s.device.MTU() {
			// Descriptor stays on the tx ring, untouched, exactly as a
			// full completion ring or device backpressure would leave it.
			s.tx.Discard(uint32(consumed))
			return sent, newErr("tx_flush", KindMsgSize, fmt.Sprintf("descriptor length %d exceeds device mtu %d", desc.Length, s.device.MTU()))
		}

		if !s.umem.CompRing().Reserve(1) {
			// Completion ring has no room to take this frame back once
			// it's sent: stop here and leave the descriptor queued.
			s.tx.Discard(uint32(consumed))
			return sent, ErrAgain
		}

		frame := data[desc.Offset : desc.Offset+desc.Length]
		if serr := s.device.Submit(frame); serr != nil {
			if errors.Is(serr, ErrAgain) {
				// Device backpressure: stop here, leave the rest queued.
				s.tx.Discard(uint32(consumed))
				return sent, ErrAgain
			}
			s.stats.TxInvalidDescs++
			consumed++
			continue
		}

		// The reserve above guarantees this produce succeeds; a failure
		// here means the reserve/produce accounting itself is broken.
		if !s.umem.CompRing().ProduceOne(desc.Index) {
			panic(fmt.Sprintf("xsk: completion ring produce failed for frame %d after a successful reserve", desc.Index))
		}
		s.stats.TxPackets++
		sent++
		consumed++
	}

	s.tx.Discard(uint32(consumed))
	if sent == 0 && consumed == 0 {
		return 0, ErrAgain
	}
	return sent, nil
}
