package lzss

import "testing"

func TestEmitLiteralAndReadBack(t *testing.T) {
	w, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, b := range []byte("abcdef") {
		w.EmitLiteral(b)
	}
	out := make([]byte, 6)
	if err := w.CopyRange(out, 0, 6); err != nil {
		t.Fatalf("CopyRange: %v", err)
	}
	if string(out) != "abcdef" {
		t.Fatalf("got %q", out)
	}
}

func TestSelfOverlappingMatchRunLength(t *testing.T) {
	// §8 boundary case: distance=1, length=100 after literal 0x41 yields
	// 101 copies of 0x41.
	w, err := New(256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.EmitLiteral(0x41)
	if err := w.EmitMatch(1, 100); err != nil {
		t.Fatalf("EmitMatch: %v", err)
	}
	out := make([]byte, 101)
	if err := w.CopyRange(out, 0, 101); err != nil {
		t.Fatalf("CopyRange: %v", err)
	}
	for i, b := range out {
		if b != 0x41 {
			t.Fatalf("byte %d = %#x, want 0x41", i, b)
		}
	}
}

func TestMatchFirstByteMatchesPreCallWindow(t *testing.T) {
	w, err := New(64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, b := range []byte("xyzxyz") {
		w.EmitLiteral(b)
	}
	before := w.ReadByte(w.Position() - 3) // 'x' of the second "xyz"
	if err := w.EmitMatch(3, 3); err != nil {
		t.Fatalf("EmitMatch: %v", err)
	}
	got := w.ReadByte(w.Position() - 3)
	if got != before {
		t.Fatalf("first emitted byte %q != pre-call window byte %q", got, before)
	}
}

func TestNonPowerOfTwoRejected(t *testing.T) {
	if _, err := New(100); err == nil {
		t.Fatal("expected error for non power-of-two size")
	}
}
