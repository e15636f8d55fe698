package xsk

import "testing"

func newTestUmem(t *testing.T) *Umem {
	t.Helper()
	u, err := NewUmem(2048, 16, 0, 8, 8)
	if err != nil {
		t.Fatalf("NewUmem: %v", err)
	}
	return u
}

func TestNewUmemRejectsBadFrameSize(t *testing.T) {
	if _, err := NewUmem(3000, 16, 0, 8, 8); err == nil {
		t.Error("expected error for non-power-of-two frame size")
	}
}

func TestNewUmemRejectsHeadroomTooLarge(t *testing.T) {
	if _, err := NewUmem(2048, 16, 2048, 8, 8); err == nil {
		t.Error("expected error when headroom >= frame_size")
	}
}

func TestUmemFrameDataBounds(t *testing.T) {
	u := newTestUmem(t)
	data, err := u.FrameData(0)
	if err != nil {
		t.Fatalf("FrameData(0): %v", err)
	}
	if len(data) != int(u.FrameSize()) {
		t.Errorf("expected frame of length %d, got %d", u.FrameSize(), len(data))
	}
	if _, err := u.FrameData(u.NumFrames()); err == nil {
		t.Error("expected out-of-range frame index to error")
	}
}

func TestUmemFrameDataDistinctFrames(t *testing.T) {
	u := newTestUmem(t)
	f0, _ := u.FrameData(0)
	f1, _ := u.FrameData(1)
	f0[0] = 0xAA
	if f1[0] == 0xAA {
		t.Error("expected distinct frames to not alias each other")
	}
}

func TestUmemRefcount(t *testing.T) {
	u := newTestUmem(t)
	if u.Refcount() != 1 {
		t.Fatalf("expected initial refcount 1, got %d", u.Refcount())
	}
	if got := u.Ref(); got != 2 {
		t.Errorf("expected Ref() to return 2, got %d", got)
	}
	if got := u.Unref(); got != 1 {
		t.Errorf("expected Unref() to return 1, got %d", got)
	}
}

func TestUmemOwnerBookkeepingNoDoubleOwnership(t *testing.T) {
	u := newTestUmem(t)
	if got := u.Owner(3); got != ownerFree {
		t.Fatalf("expected fresh frame to start free, got %v", got)
	}
	u.SetOwner(3, ownerPendingRX)
	if got := u.Owner(3); got != ownerPendingRX {
		t.Errorf("expected owner pending_rx, got %v", got)
	}
	u.SetOwner(3, ownerFilled)
	if got := u.Owner(3); got != ownerFilled {
		t.Errorf("expected owner filled, got %v", got)
	}
	// Every other frame must remain unaffected by frame 3's transitions.
	if got := u.Owner(4); got != ownerFree {
		t.Errorf("expected frame 4 to remain free, got %v", got)
	}
}

func TestUmemFillAndCompRingsBoundToProps(t *testing.T) {
	u := newTestUmem(t)
	if !u.FillRing().ProduceOne(uint32(0)) {
		t.Fatal("expected fill ring produce to succeed")
	}
	// Out-of-range index must be silently dropped by validation.
	if !u.CompRing().ProduceOne(u.NumFrames() + 100) {
		t.Fatal("expected produce to be accepted; validation happens on peek")
	}
	if _, ok := u.CompRing().PeekOne(); ok {
		t.Error("expected the only completion entry (out of range) to be dropped")
	}
	if u.CompRing().NbInvalid() != 1 {
		t.Errorf("expected nb_invalid == 1 on completion ring, got %d", u.CompRing().NbInvalid())
	}
}
