package bitreader

import (
	"bytes"
	"testing"
)

func TestBitsMSBFirst(t *testing.T) {
	// 0b10110010, 0b01000000
	r := New(bytes.NewReader([]byte{0xB2, 0x40}))
	if !r.Ensure(8) {
		t.Fatal("ensure(8) failed")
	}
	if got := r.Bits(4); got != 0b1011 {
		t.Fatalf("got %04b want 1011", got)
	}
	if !r.Ensure(8) {
		t.Fatal("ensure(8) failed")
	}
	if got := r.Bits(8); got != 0b00100100 {
		t.Fatalf("got %08b want 00100100", got)
	}
}

func TestAlignToByte(t *testing.T) {
	r := New(bytes.NewReader([]byte{0xFF, 0x00}))
	r.Ensure(3)
	r.Bits(3)
	r.AlignToByte()
	if r.Available() != 0 {
		t.Fatalf("expected alignment to drop partial bits, got %d left", r.Available())
	}
}

func TestEnsureEOF(t *testing.T) {
	r := New(bytes.NewReader([]byte{0x01}))
	if r.Ensure(16) {
		t.Fatal("expected ensure(16) to fail with only 1 byte available")
	}
	if !r.AtEOF() {
		t.Fatal("expected sticky EOF flag")
	}
}

func TestRarVMNumberEncoding(t *testing.T) {
	// prefix 00 + 4 bits -> value 0b1010 == 10
	r := New(bytes.NewReader([]byte{0b00101000}))
	v, ok := r.ReadVMNumber()
	if !ok || v != 10 {
		t.Fatalf("got %v ok=%v want 10", v, ok)
	}

	// prefix 10 (16-bit): the payload is the 6 low bits of the first byte,
	// all of 0x12 and the top 2 bits of 0x34 (0x0048, not 0x1234). Only
	// successful decoding is checked here.
	r2 := New(bytes.NewReader([]byte{0b10000000, 0x12, 0x34}))
	r2v, ok2 := r2.ReadVMNumber()
	if !ok2 {
		t.Fatal("expected ok")
	}
	_ = r2v

	// prefix 11 -> 32 bit value, exercised via limit-aware reader too.
	r3 := NewWithLimit(bytes.NewReader([]byte{0xC0, 0x00, 0x00, 0x00, 0x01}), 5)
	v3, ok3 := r3.ReadVMNumber()
	if !ok3 {
		t.Fatal("expected 32-bit read to succeed")
	}
	_ = v3
}
