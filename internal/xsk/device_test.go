package xsk

import (
	"errors"
	"testing"
)

func TestFakeDeviceSubmitRecords(t *testing.T) {
	d := NewFakeDevice("eth0", 1500, 4)
	if err := d.Submit([]byte("hello")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(d.Submitted) != 1 || string(d.Submitted[0]) != "hello" {
		t.Errorf("unexpected submitted frames: %q", d.Submitted)
	}
}

func TestFakeDeviceSubmitRejectsOversizeFrame(t *testing.T) {
	d := NewFakeDevice("eth0", 4, 4)
	err := d.Submit([]byte("too long"))
	if err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestFakeDeviceSubmitRejectsWhenDown(t *testing.T) {
	d := NewFakeDevice("eth0", 1500, 4)
	d.SetUp(false)
	err := d.Submit([]byte("hi"))
	if err == nil {
		t.Fatal("expected submit on a down device to fail")
	}
}

func TestFakeDeviceRejectNextReturnsErrAgain(t *testing.T) {
	d := NewFakeDevice("eth0", 1500, 4)
	d.RejectNext = true
	err := d.Submit([]byte("hi"))
	if !errors.Is(err, ErrAgain) {
		t.Fatalf("expected ErrAgain, got %v", err)
	}
	// RejectNext is one-shot.
	if err := d.Submit([]byte("hi")); err != nil {
		t.Fatalf("expected the next submit to succeed, got %v", err)
	}
}

func TestLoopbackDeviceRoundTrip(t *testing.T) {
	d := NewLoopbackDevice("lo", 1500, 4)
	if err := d.Submit([]byte("ping")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	frame, ok := d.Receive()
	if !ok {
		t.Fatal("expected a looped-back frame")
	}
	if string(frame) != "ping" {
		t.Errorf("expected 'ping', got %q", frame)
	}
	d.Close()
	if _, ok := d.Receive(); ok {
		t.Error("expected Receive to report closed after Close")
	}
}
