// Package bitreader implements the MSB-first bit extraction the RAR
// decoders need (§4.2): a refillable accumulator with byte-boundary
// alignment and RAR's own variable-width "rarvm number" operand encoding.
package bitreader

import "io"

// Reader holds a 64-bit accumulator and a count of valid buffered bits,
// matching §4.2's data model exactly. Bits are always consumed MSB-first.
type Reader struct {
	src     io.Reader
	acc     uint64
	nbits   uint
	atEOF   bool
	left    int64 // per-entry "data-left" counter; negative means unlimited
	readBuf [1]byte
}

// New wraps src with no per-entry byte budget (suitable for ZIP/TAR use,
// where the container framing — not the bit reader — bounds the stream).
func New(src io.Reader) *Reader {
	return &Reader{src: src, left: -1}
}

// NewWithLimit wraps src the way RAR's refill does: every byte pulled from
// the archive stream debits limit, and reaching zero sets the sticky
// at-EOF flag even if the underlying stream has more bytes (they belong
// to the next block/entry).
func NewWithLimit(src io.Reader, limit int64) *Reader {
	return &Reader{src: src, left: limit}
}

// AtEOF reports whether refill has permanently failed (source exhausted
// or per-entry budget spent) and no more bits can be produced.
func (r *Reader) AtEOF() bool { return r.atEOF }

// Ensure refills the accumulator by reading bytes from the underlying
// source until at least k bits are buffered, or the source/budget is
// exhausted. It reports whether k bits are now available.
func (r *Reader) Ensure(k uint) bool {
	if k > 32 {
		// Every call site needs at most a 32-bit immediate; keeping this
		// invariant lets the 64-bit accumulator shift math below stay
		// simple without a slow-path for wide refills.
		panic("bitreader: Ensure called with k > 32")
	}
	for r.nbits < k {
		if r.atEOF {
			return r.nbits >= k
		}
		if r.left == 0 {
			r.atEOF = true
			return r.nbits >= k
		}
		n, err := r.src.Read(r.readBuf[:])
		if n == 0 {
			r.atEOF = true
			if err != nil {
				return r.nbits >= k
			}
			continue
		}
		if r.left > 0 {
			r.left--
		}
		r.acc |= uint64(r.readBuf[0]) << (56 - r.nbits)
		r.nbits += 8
	}
	return true
}

// Bits consumes and returns the top k bits MSB-first. Behavior is
// undefined if a preceding Ensure(k) did not succeed, matching §4.2.
func (r *Reader) Bits(k uint) uint32 {
	if k == 0 {
		return 0
	}
	v := uint32(r.acc >> (64 - k))
	r.acc <<= k
	if k > r.nbits {
		r.nbits = 0
	} else {
		r.nbits -= k
	}
	return v
}

// PeekBits returns the top k bits without consuming them.
func (r *Reader) PeekBits(k uint) uint32 {
	if k == 0 {
		return 0
	}
	return uint32(r.acc >> (64 - k))
}

// Available reports how many bits are currently buffered.
func (r *Reader) Available() uint { return r.nbits }

// AlignToByte drops buffered bits down to the next lower multiple of 8,
// the byte-realignment §9 calls out at RAR solid-stream transition points.
func (r *Reader) AlignToByte() {
	drop := r.nbits % 8
	if drop == 0 {
		return
	}
	r.acc <<= drop
	r.nbits -= drop
}

// ReadVMNumber decodes RAR's "rarvm number" operand encoding (§4.2): a
// 2-bit size prefix followed by a 4/8/16/32-bit payload, with the 8-bit
// form's small-value case concatenating 4 more bits and sign-extending.
func (r *Reader) ReadVMNumber() (uint32, bool) {
	if !r.Ensure(2) {
		return 0, false
	}
	switch r.Bits(2) {
	case 0:
		if !r.Ensure(4) {
			return 0, false
		}
		return r.Bits(4), true
	case 1:
		if !r.Ensure(8) {
			return 0, false
		}
		v := r.Bits(8)
		if v < 16 {
			if !r.Ensure(4) {
				return 0, false
			}
			v = (v << 4) | r.Bits(4)
			v |= 0xFFFFFF00
		}
		return v, true
	case 2:
		if !r.Ensure(16) {
			return 0, false
		}
		return r.Bits(16), true
	default:
		if !r.Ensure(32) {
			return 0, false
		}
		return r.Bits(32), true
	}
}
