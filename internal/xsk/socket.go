package xsk

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// State is the socket lifecycle state: UNBOUND, BOUND, RELEASED.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time counter snapshot, returned as a value copy
// under the socket's mutex, mirroring the teacher's AFXDPStats /
// AFXDPSocket.GetStats pattern.
type Stats struct {
	RxPackets      uint64
	RxDropped      uint64
	RxInvalidDescs uint64
	TxPackets      uint64
	TxInvalidDescs uint64
}

// Option configures a Socket at construction time.
type Option func(*Socket)

// WithZeroCopy toggles the zero-copy data-path flag (bookkeeping only in
// this encoding; there is no real kernel page table to remap).
func WithZeroCopy(on bool) Option { return func(s *Socket) { s.zeroCopy = on } }

// WithNeedWakeup records the need-wakeup flag on the socket. The TX
// engine does not read it: Flush behaves the same whether it is set or not.
func WithNeedWakeup(on bool) Option { return func(s *Socket) { s.needWakeup = on } }

// WithDrainOnRebind controls whether Rebind drains the completion ring
// of the prior binding before installing the new one.
func WithDrainOnRebind(on bool) Option { return func(s *Socket) { s.drainOnRebind = on } }

// WithTxBatch sets the maximum number of descriptors the TX engine
// submits per call.
func WithTxBatch(n int) Option {
	return func(s *Socket) {
		if n > 0 {
			s.txBatch = n
		}
	}
}

// Configure applies opts to s. Named to match the setsockopt-style
// configuration call in the wire protocol this package models; unlike a
// real setsockopt(2) there is no byte buffer to marshal, so options are
// plain functional values instead.
func Configure(s *Socket, opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range opts {
		opt(s)
	}
}

// Socket is one endpoint in the ring protocol: an rx ring, a tx ring,
// and a reference to the shared umem whose fill/completion rings it
// draws from and returns to.
type Socket struct {
	mu    sync.Mutex
	state State

	umem  *Umem
	rx    *Ring[Descriptor]
	tx    *Ring[Descriptor]
	hooks *HookTable

	device  Device
	ifindex string
	queueID uint32

	zeroCopy      bool
	needWakeup    bool
	drainOnRebind bool
	txBatch       int

	stats Stats
}

// NewSocket creates an unbound socket with rx/tx rings of the given
// lengths, bound to umem for frame storage and fill/completion. Either
// length may be 0, meaning that ring is not configured on this socket
// (a tx-only or rx-only socket); Configure's RX_RING/TX_RING family in
// spec.md §4.3 allows either to be absent.
func NewSocket(umem *Umem, hooks *HookTable, rxLen, txLen uint32, opts ...Option) (*Socket, error) {
	var rx, tx *Ring[Descriptor]
	if rxLen != 0 {
		var err error
		rx, err = NewDescRing(rxLen)
		if err != nil {
			return nil, wrapErr("new_socket", KindInvalid, "rx ring", err)
		}
		rx.BindProps(umem.Props())
	}
	if txLen != 0 {
		var err error
		tx, err = NewDescRing(txLen)
		if err != nil {
			return nil, wrapErr("new_socket", KindInvalid, "tx ring", err)
		}
		tx.BindProps(umem.Props())
	}
	if rx == nil && tx == nil {
		return nil, newErr("new_socket", KindInvalid, "socket needs at least one of rx/tx")
	}

	s := &Socket{
		state:         StateUnbound,
		umem:          umem,
		rx:            rx,
		tx:            tx,
		hooks:         hooks,
		drainOnRebind: true,
		txBatch:       16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the socket's current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Umem returns the socket's registered umem.
func (s *Socket) Umem() *Umem { return s.umem }

// RxRing returns the socket's rx descriptor ring.
func (s *Socket) RxRing() *Ring[Descriptor] { return s.rx }

// TxRing returns the socket's tx descriptor ring.
func (s *Socket) TxRing() *Ring[Descriptor] { return s.tx }

// Bind attaches the socket to (ifindex, queueID) on device, transitioning
// UNBOUND -> BOUND. Returns KindBusy if already bound (use Rebind
// instead), KindBadHandle if the socket has been released, KindNetDown
// if the device is administratively down, and KindInvalid if queueID is
// out of range for the device.
func (s *Socket) Bind(device Device, ifindex string, queueID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReleased:
		return newErr("bind", KindBadHandle, "socket has been released")
	case StateBound:
		return newErr("bind", KindBusy, "already bound; use Rebind")
	}
	if !device.IsUp() {
		return newErr("bind", KindNetDown, ifindex)
	}
	if queueID >= device.QueueCount() {
		return newErr("bind", KindInvalid, fmt.Sprintf("queue %d out of range (device has %d)", queueID, device.QueueCount()))
	}
	if s.hooks != nil {
		if err := s.hooks.Register(ifindex, queueID, s); err != nil {
			return err
		}
	}
	s.device = device
	s.ifindex = ifindex
	s.queueID = queueID
	s.state = StateBound
	return nil
}

// BindShared attaches the socket to (ifindex, queueID) adopting handle's
// umem instead of its own, per spec.md §4.2's shared-umem binding mode
// (scenario E5: two sockets bound to the same (dev, q) share one umem).
// handle must already be bound to the same (ifindex, queueID) and must
// have been constructed against the identical *Umem this socket holds —
// in this encoding there is no way to swap a socket's umem after
// construction, so a shared bind is a NewSocket(handle.Umem(), ...)
// call followed by BindShared rather than a later umem substitution.
// Returns KindBadHandle if handle is nil, not bound, or was built
// against a different umem, and KindInvalid if handle is bound to a
// different (ifindex, queueID) than requested.
func (s *Socket) BindShared(device Device, ifindex string, queueID uint32, handle *Socket) error {
	if handle == nil {
		return newErr("bind_shared", KindBadHandle, "nil shared-umem handle")
	}

	// Snapshot handle's binding before taking s.mu: two sockets could
	// each be used as the other's shared-umem handle concurrently, and
	// holding both mutexes at once in opposite orders would deadlock.
	handleState, handleIfindex, handleQueueID := handle.bindingSnapshot()
	if handleState != StateBound || handle.umem == nil {
		return newErr("bind_shared", KindBadHandle, "handle socket has no bound umem")
	}
	if handle.umem != s.umem {
		return newErr("bind_shared", KindBadHandle, "handle was not constructed with this socket's umem")
	}
	if handleIfindex != ifindex || handleQueueID != queueID {
		return newErr("bind_shared", KindInvalid, "handle is bound to a different (ifindex, queue_id)")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReleased:
		return newErr("bind_shared", KindBadHandle, "socket has been released")
	case StateBound:
		return newErr("bind_shared", KindBusy, "already bound; use Rebind")
	}
	if !device.IsUp() {
		return newErr("bind_shared", KindNetDown, ifindex)
	}
	if queueID >= device.QueueCount() {
		return newErr("bind_shared", KindInvalid, fmt.Sprintf("queue %d out of range (device has %d)", queueID, device.QueueCount()))
	}

	if s.hooks != nil {
		if err := s.hooks.Register(ifindex, queueID, s); err != nil {
			return err
		}
	}
	s.umem.Ref()
	s.device = device
	s.ifindex = ifindex
	s.queueID = queueID
	s.state = StateBound
	return nil
}

// bindingSnapshot returns a point-in-time copy of the socket's lifecycle
// state and binding, for callers (like BindShared) that need to inspect
// another socket without risking a cross-socket lock-ordering deadlock.
func (s *Socket) bindingSnapshot() (State, string, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.ifindex, s.queueID
}

// Rebind atomically moves a BOUND socket to a new (device, ifindex,
// queueID), optionally draining the prior binding's completion ring
// first. See Config.DrainOnRebind in the sample program for the policy
// this defaults from.
func (s *Socket) Rebind(device Device, ifindex string, queueID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBound {
		return newErr("rebind", KindInvalid, "socket is not bound")
	}
	if !device.IsUp() {
		return newErr("rebind", KindNetDown, ifindex)
	}
	if queueID >= device.QueueCount() {
		return newErr("rebind", KindInvalid, fmt.Sprintf("queue %d out of range (device has %d)", queueID, device.QueueCount()))
	}

	if s.drainOnRebind {
		for !s.umem.CompRing().IsEmpty() {
			if _, ok := s.umem.CompRing().PeekOne(); ok {
				s.umem.CompRing().Discard(1)
			} else {
				break
			}
		}
	}

	if s.hooks != nil {
		s.hooks.Unregister(s.ifindex, s.queueID, s)
		if err := s.hooks.Register(ifindex, queueID, s); err != nil {
			// Keep the old binding in place on failure.
			s.hooks.Register(s.ifindex, s.queueID, s)
			return err
		}
	}
	s.device = device
	s.ifindex = ifindex
	s.queueID = queueID
	return nil
}

// Release tears the socket down, transitioning to RELEASED, unregistering
// from the hook table, and dropping its reference on the shared umem.
// Calling Release twice is a no-op.
func (s *Socket) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReleased {
		return nil
	}
	if s.state == StateBound && s.hooks != nil {
		s.hooks.Unregister(s.ifindex, s.queueID, s)
	}
	s.umem.Unref()
	s.state = StateReleased
	return nil
}

// GetStats returns a point-in-time snapshot of the socket's counters.
func (s *Socket) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// deliverRx simulates the kernel's half of the rx path for a socket
// with no real NIC behind it: it pulls one free frame index from the
// umem's fill ring, copies frame into that frame's storage (respecting
// headroom and frame size), and publishes the resulting descriptor on
// the socket's rx ring. Returns ErrNoSpace if the fill ring is empty or
// the rx ring is full, and ErrMsgSize if frame does not fit in a frame
// after headroom.
func (s *Socket) deliverRx(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBound {
		return newErr("deliver_rx", KindInvalid, "socket is not bound")
	}
	if s.rx == nil {
		return newErr("deliver_rx", KindNoBufs, "socket has no rx ring")
	}

	index, ok := s.umem.FillRing().PeekOne()
	if !ok {
		s.stats.RxDropped++
		return ErrNoSpace
	}

	capacity := s.umem.FrameSize() - s.umem.Headroom()
	if uint32(len(frame)) > capacity {
		// Abandon the peek: the fill-ring index is not consumed, so the
		// frame stays kernel-owned-pending-rx (spec.md §8 property 11).
		s.stats.RxDropped++
		return newErr("deliver_rx", KindMsgSize, fmt.Sprintf("frame %d bytes exceeds capacity %d", len(frame), capacity))
	}

	data, err := s.umem.FrameData(index)
	if err != nil {
		s.umem.FillRing().Discard(1)
		s.stats.RxInvalidDescs++
		return wrapErr("deliver_rx", KindInvalid, "fill ring returned an invalid index", err)
	}
	s.umem.SetOwner(index, ownerPendingRX)
	n := copy(data[s.umem.Headroom():], frame)

	desc := Descriptor{Index: index, Length: uint32(n), Offset: s.umem.Headroom()}
	if !s.rx.ProduceOne(desc) {
		// rx ring full: abandon the peek and leave the index exactly
		// where it was in the fill ring rather than reordering it to the
		// tail (spec.md §4.4 step 4). Owner stays pending-rx, set above.
		s.stats.RxDropped++
		return ErrNoSpace
	}
	s.umem.FillRing().Discard(1)
	s.umem.SetOwner(index, ownerFilled)
	s.stats.RxPackets++
	return nil
}

// bindRequest is the wire-compatible layout of a bind call, matching
// spec.md's socket-address struct, kept for a future real syscall
// binding even though this package never crosses a real syscall
// boundary.
type bindRequest struct {
	Family           uint16
	Flags            uint16
	Ifindex          uint32
	QueueID          uint32
	SharedUmemHandle uint32
}

const bindRequestSize = 16

func (b bindRequest) marshal() []byte {
	buf := make([]byte, bindRequestSize)
	binary.LittleEndian.PutUint16(buf[0:2], b.Family)
	binary.LittleEndian.PutUint16(buf[2:4], b.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], b.Ifindex)
	binary.LittleEndian.PutUint32(buf[8:12], b.QueueID)
	binary.LittleEndian.PutUint32(buf[12:16], b.SharedUmemHandle)
	return buf
}

func unmarshalBindRequest(buf []byte) (bindRequest, error) {
	if len(buf) < bindRequestSize {
		return bindRequest{}, newErr("unmarshal_bind_request", KindInvalid, "short buffer")
	}
	return bindRequest{
		Family:           binary.LittleEndian.Uint16(buf[0:2]),
		Flags:            binary.LittleEndian.Uint16(buf[2:4]),
		Ifindex:          binary.LittleEndian.Uint32(buf[4:8]),
		QueueID:          binary.LittleEndian.Uint32(buf[8:12]),
		SharedUmemHandle: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}
