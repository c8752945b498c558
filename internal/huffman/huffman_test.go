package huffman

import (
	"bytes"
	"testing"

	"github.com/javi11/unarr/internal/bitreader"
)

// encodeCanonical builds the same canonical assignment New() would, so
// tests can produce bitstreams independently of the decoder under test.
func encodeCanonical(t *testing.T, lengths []int) map[int][2]int {
	t.Helper()
	var blCount [16]int
	for _, l := range lengths {
		if l > 0 {
			blCount[l]++
		}
	}
	var code int
	var nextCode [16]int
	for bits := 1; bits <= 15; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	out := map[int][2]int{}
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		out[sym] = [2]int{nextCode[l], l}
		nextCode[l]++
	}
	return out
}

func writeBits(buf *bytes.Buffer, pending *uint32, pendingBits *uint, code, length int) {
	for i := length - 1; i >= 0; i-- {
		bit := (code >> uint(i)) & 1
		*pending = (*pending << 1) | uint32(bit)
		*pendingBits++
		if *pendingBits == 8 {
			buf.WriteByte(byte(*pending))
			*pending = 0
			*pendingBits = 0
		}
	}
}

func flushBits(buf *bytes.Buffer, pending uint32, pendingBits uint) {
	if pendingBits == 0 {
		return
	}
	buf.WriteByte(byte(pending << (8 - pendingBits)))
}

func TestRoundTripAllSymbols(t *testing.T) {
	lengths := []int{3, 3, 3, 3, 3, 3, 4, 4}
	codes := encodeCanonical(t, lengths)
	c, err := New(lengths)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	var pending uint32
	var pendingBits uint
	order := []int{0, 1, 2, 3, 4, 5, 6, 7}
	for _, sym := range order {
		cd := codes[sym]
		writeBits(&buf, &pending, &pendingBits, cd[0], cd[1])
	}
	flushBits(&buf, pending, pendingBits)

	br := bitreader.New(bytes.NewReader(buf.Bytes()))
	for _, want := range order {
		got, err := c.ReadNext(br)
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		if int(got) != want {
			t.Fatalf("got %d want %d", got, want)
		}
	}
}

func TestConflictDetected(t *testing.T) {
	// Two symbols with equal length will get distinct canonical codes, so
	// force an explicit conflict by inserting the same code twice through
	// a length vector canonical assignment would never itself produce:
	// a length-1 vector with three non-zero entries is over-subscribed.
	_, err := New([]int{1, 1, 1})
	if err == nil {
		t.Fatal("expected conflict error for over-subscribed code")
	}
}

func TestEmptyLengths(t *testing.T) {
	c, err := New([]int{0, 0, 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.MaxLen() != 0 {
		t.Fatalf("expected MaxLen 0, got %d", c.MaxLen())
	}
}
