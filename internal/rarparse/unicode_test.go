package rarparse

import "testing"

func TestDecodeRAR3NameFallsBackToASCII(t *testing.T) {
	// No NUL separator at all: treated as a plain (non-Unicode-tagged)
	// name and returned verbatim.
	raw := []byte("readme.txt")
	got := DecodeRAR3Name(raw, len(raw))
	if got != "readme.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeRAR3NameDegenerateTailReturnsRaw(t *testing.T) {
	// A NUL separator with zero or one bytes left in the tail (too
	// short to hold the fixed high byte plus a flag byte) falls back to the whole
	// raw field verbatim, matching the reference decoder's shortcut.
	raw := append([]byte("abc\x00"), 0xAA)
	got := DecodeRAR3Name(raw, len(raw))
	if got != string(raw) {
		t.Fatalf("got %q, want %q", got, string(raw))
	}
}

func TestDecodeRAR3NameRunCopiesFromASCIIPrefix(t *testing.T) {
	// high byte 0x00, then a single flag byte selecting op 3 (run) for
	// its first 2-bit slot: 0b11 in the top two bits, remaining six
	// bits unused since the run consumes the rest of the tail. Length
	// byte 0x01 (top bit clear) means a run of (1&0x7F)+2 = 3
	// characters copied straight from the ASCII prefix "abc".
	raw := []byte("abc\x00\x00\xC0\x01")
	got := DecodeRAR3Name(raw, len(raw))
	if got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestHasSignature(t *testing.T) {
	good := append([]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}, 0xFF)
	if !HasSignature(good) {
		t.Fatal("expected signature match")
	}
	if HasSignature([]byte("not a rar")) {
		t.Fatal("expected signature mismatch")
	}
}
