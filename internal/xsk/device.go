package xsk

// Device is the external network device a socket binds to. Everything
// about how packets actually travel the wire is out of scope: a Device
// only needs to answer the handful of questions the socket lifecycle and
// the TX engine must ask of a real NIC queue.
type Device interface {
	// Name returns the device's interface name.
	Name() string
	// MTU returns the device's maximum transmission unit in bytes.
	MTU() uint32
	// IsUp reports whether the device is administratively up.
	IsUp() bool
	// QueueCount returns the number of rx/tx queue pairs the device exposes.
	QueueCount() uint32
	// Submit hands a frame to the device for transmission. Returns
	// ErrAgain if the device's own queue is momentarily full.
	Submit(frame []byte) error
}

// FakeDevice is an in-memory Device for tests: it never actually sends
// anything, just records what was submitted to it.
type FakeDevice struct {
	name       string
	mtu        uint32
	up         bool
	queues     uint32
	Submitted  [][]byte
	RejectNext bool
}

// NewFakeDevice returns a FakeDevice that reports as up with the given
// MTU and queue count.
func NewFakeDevice(name string, mtu, queues uint32) *FakeDevice {
	return &FakeDevice{name: name, mtu: mtu, up: true, queues: queues}
}

func (d *FakeDevice) Name() string       { return d.name }
func (d *FakeDevice) MTU() uint32        { return d.mtu }
func (d *FakeDevice) IsUp() bool         { return d.up }
func (d *FakeDevice) QueueCount() uint32 { return d.queues }

// SetUp toggles the device's administrative state, used to exercise the
// netdown error path.
func (d *FakeDevice) SetUp(up bool) { d.up = up }

func (d *FakeDevice) Submit(frame []byte) error {
	if d.RejectNext {
		d.RejectNext = false
		return ErrAgain
	}
	if !d.up {
		return newErr("submit", KindNetDown, d.name)
	}
	if len(frame) > int(d.mtu) {
		return newErr("submit", KindMsgSize, d.name)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.Submitted = append(d.Submitted, cp)
	return nil
}

// LoopbackDevice is a Device that feeds everything submitted to it back
// into an inbound queue, for driving the sample program without a real
// NIC.
type LoopbackDevice struct {
	FakeDevice
	inbound chan []byte
}

// NewLoopbackDevice returns a Device that loops transmitted frames back
// as inbound traffic, buffered up to backlog frames.
func NewLoopbackDevice(name string, mtu uint32, backlog int) *LoopbackDevice {
	return &LoopbackDevice{
		FakeDevice: FakeDevice{name: name, mtu: mtu, up: true, queues: 1},
		inbound:    make(chan []byte, backlog),
	}
}

func (d *LoopbackDevice) Submit(frame []byte) error {
	if err := d.FakeDevice.Submit(frame); err != nil {
		return err
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case d.inbound <- cp:
	default:
		// Backlog full: the frame was accepted by the device but dropped
		// before reaching the inbound queue, same as a lossy link.
	}
	return nil
}

// Receive blocks until a looped-back frame is available or ctx-less
// channel close; returns ok=false once the device is drained and closed.
func (d *LoopbackDevice) Receive() ([]byte, bool) {
	frame, ok := <-d.inbound
	return frame, ok
}

// Close stops accepting further loopback traffic.
func (d *LoopbackDevice) Close() {
	close(d.inbound)
}
