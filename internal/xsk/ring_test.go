package xsk

import "testing"

func TestNewRingRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewIndexRing(0); err == nil {
		t.Error("expected error for capacity 0")
	}
	if _, err := NewIndexRing(3); err == nil {
		t.Error("expected error for non-power-of-two capacity")
	}
	if _, err := NewIndexRing(4); err != nil {
		t.Errorf("expected capacity 4 to be accepted, got %v", err)
	}
}

func TestRingProduceAndPeekOne(t *testing.T) {
	r, err := NewIndexRing(4)
	if err != nil {
		t.Fatalf("NewIndexRing: %v", err)
	}
	if !r.IsEmpty() {
		t.Error("expected new ring to be empty")
	}
	if _, ok := r.PeekOne(); ok {
		t.Error("expected PeekOne on empty ring to return false")
	}

	if !r.ProduceOne(uint32(7)) {
		t.Fatal("expected ProduceOne to succeed on empty ring")
	}
	if r.IsEmpty() {
		t.Error("expected ring to be non-empty after produce")
	}

	v, ok := r.PeekOne()
	if !ok || v != 7 {
		t.Fatalf("expected PeekOne to return (7, true), got (%d, %v)", v, ok)
	}
	// Peek does not advance the consumer: peeking again returns the same value.
	v2, ok2 := r.PeekOne()
	if !ok2 || v2 != 7 {
		t.Fatalf("expected repeated PeekOne to still return (7, true), got (%d, %v)", v2, ok2)
	}

	r.Discard(1)
	if !r.IsEmpty() {
		t.Error("expected ring to be empty after discard")
	}
}

func TestRingFullBlocksProducer(t *testing.T) {
	r, err := NewIndexRing(2)
	if err != nil {
		t.Fatalf("NewIndexRing: %v", err)
	}
	if !r.ProduceOne(uint32(1)) {
		t.Fatal("expected first produce to succeed")
	}
	if !r.ProduceOne(uint32(2)) {
		t.Fatal("expected second produce to succeed")
	}
	if !r.IsFull() {
		t.Error("expected ring to report full at capacity")
	}
	if r.ProduceOne(uint32(3)) {
		t.Error("expected produce on a full ring to fail")
	}
	if !r.Reserve(0) {
		t.Error("expected Reserve(0) to always succeed")
	}
	if r.Reserve(1) {
		t.Error("expected Reserve(1) on a full ring to report false")
	}
}

func TestRingProduceBatch(t *testing.T) {
	r, err := NewIndexRing(8)
	if err != nil {
		t.Fatalf("NewIndexRing: %v", err)
	}
	if !r.ProduceBatch([]uint32{0, 1, 2, 3, 4}) {
		t.Fatal("expected batch produce of 5 indices to fit in capacity 8")
	}
	got := r.Peek(5)
	if len(got) != 5 {
		t.Fatalf("expected 5 peeked entries, got %d", len(got))
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Errorf("peek[%d] = %d, want %d", i, v, i)
		}
	}
	r.Discard(5)
	if !r.IsEmpty() {
		t.Error("expected ring to be empty after discarding all peeked entries")
	}
}

func TestRingDescriptorValidationSkipsInvalid(t *testing.T) {
	r, err := NewDescRing(4)
	if err != nil {
		t.Fatalf("NewDescRing: %v", err)
	}
	r.BindProps(&Props{FrameSize: 2048, NumFrames: 4})

	// index 9 is out of range for NumFrames=4: it must be silently dropped.
	if !r.ProduceOne(Descriptor{Index: 9, Length: 64, Offset: 0}) {
		t.Fatal("expected produce of an out-of-range descriptor to be accepted by the ring (validation happens on peek)")
	}
	if !r.ProduceOne(Descriptor{Index: 1, Length: 64, Offset: 0}) {
		t.Fatal("expected produce of a valid descriptor to succeed")
	}

	v, ok := r.PeekOne()
	if !ok {
		t.Fatal("expected PeekOne to skip the invalid descriptor and return the valid one")
	}
	if v.Index != 1 {
		t.Errorf("expected peeked descriptor index 1, got %d", v.Index)
	}
	if r.NbInvalid() != 1 {
		t.Errorf("expected nb_invalid == 1, got %d", r.NbInvalid())
	}
}

func TestRingDescriptorValidationChecksBounds(t *testing.T) {
	r, err := NewDescRing(4)
	if err != nil {
		t.Fatalf("NewDescRing: %v", err)
	}
	r.BindProps(&Props{FrameSize: 128, NumFrames: 4})

	// offset+length exceeds frame_size: invalid.
	r.ProduceOne(Descriptor{Index: 0, Length: 100, Offset: 100})
	r.ProduceOne(Descriptor{Index: 2, Length: 100, Offset: 0})

	v, ok := r.PeekOne()
	if !ok || v.Index != 2 {
		t.Fatalf("expected the only valid descriptor (index 2), got (%+v, %v)", v, ok)
	}
	if r.NbInvalid() != 1 {
		t.Errorf("expected nb_invalid == 1, got %d", r.NbInvalid())
	}
}

func TestRingWraparound(t *testing.T) {
	r, err := NewIndexRing(2)
	if err != nil {
		t.Fatalf("NewIndexRing: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !r.ProduceOne(uint32(i)) {
			t.Fatalf("iteration %d: expected produce to succeed on an empty slot", i)
		}
		v, ok := r.PeekOne()
		if !ok || v != uint32(i) {
			t.Fatalf("iteration %d: expected peek to return %d, got (%d, %v)", i, i, v, ok)
		}
		r.Discard(1)
	}
}

func TestRingCounterWraparoundArithmetic(t *testing.T) {
	r, err := NewIndexRing(4)
	if err != nil {
		t.Fatalf("NewIndexRing: %v", err)
	}
	// Force the producer counter close to uint32 wraparound and verify Depth
	// still reports correctly across the rollover boundary.
	r.producer.Store(^uint32(0)) // max uint32: the next produce wraps to 0
	r.consumer.Store(^uint32(0))
	if !r.IsEmpty() {
		t.Fatal("expected ring to be empty before crossing the wraparound boundary")
	}
	if !r.ProduceOne(uint32(42)) {
		t.Fatal("expected produce to succeed near the counter wraparound boundary")
	}
	if r.Depth() != 1 {
		t.Errorf("expected depth 1 across wraparound, got %d", r.Depth())
	}
	v, ok := r.PeekOne()
	if !ok || v != 42 {
		t.Fatalf("expected (42, true) across wraparound, got (%d, %v)", v, ok)
	}
}
