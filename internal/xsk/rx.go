package xsk

// PacketHandler receives one received frame's payload bytes. The slice
// is only valid for the duration of the call: the engine recycles the
// backing umem frame immediately afterward, so a handler that needs to
// keep the bytes must copy them.
type PacketHandler func(frame []byte)

// RxEngine drives a socket's receive path: pull descriptors published
// on the rx ring, hand each one's frame data to a handler, and recycle
// the frame back onto the umem's fill ring so the kernel (simulated, in
// this package, by Socket.deliverRx) can reuse it.
//
// Grounded on the teacher's processRxPackets/getRxPacket/getFrameData/
// markFrameProcessed/updateRxConsumer chain in its AF_XDP socket,
// collapsed from five named steps into one Poll call over this
// package's ring abstraction: peek, dispatch, recycle, discard.
type RxEngine struct {
	socket  *Socket
	handler PacketHandler
}

// NewRxEngine returns an RxEngine that delivers received frames to handler.
func NewRxEngine(s *Socket, handler PacketHandler) *RxEngine {
	return &RxEngine{socket: s, handler: handler}
}

// Poll processes up to budget descriptors currently available on the rx
// ring. Returns the number of frames delivered to the handler and the
// number dropped because the fill ring had no room to take the
// recycled frame back.
func (e *RxEngine) Poll(budget uint32) (processed int, dropped int) {
	s := e.socket
	if s.rx == nil {
		return 0, 0
	}
	descs := s.rx.Peek(budget)
	if len(descs) == 0 {
		return 0, 0
	}

	for _, desc := range descs {
		data, err := s.umem.FrameData(desc.Index)
		if err == nil && desc.Offset+desc.Length <= uint32(len(data)) {
			e.handler(data[desc.Offset : desc.Offset+desc.Length])
			processed++
		} else {
			s.mu.Lock()
			s.stats.RxInvalidDescs++
			s.mu.Unlock()
		}

		s.umem.SetOwner(desc.Index, ownerFree)
		if !s.umem.FillRing().ProduceOne(desc.Index) {
			// Fill ring has no room to take the frame back; its index
			// is not placed on any ring and drops out of rotation.
			s.mu.Lock()
			s.stats.RxDropped++
			s.mu.Unlock()
			dropped++
		}
	}

	s.rx.Discard(uint32(len(descs)))
	return processed, dropped
}
