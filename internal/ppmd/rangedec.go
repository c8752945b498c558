// Package ppmd carries the RAR-specific PPMd range-decoder plumbing
// (CPpmdRAR_RangeDec in uncompress-rar.c): a carry-less range coder that
// reads one byte at a time from the entry's compressed bitstream. This
// part is fully portable and implemented here; the Ppmd7 context-tree
// model that turns decoded ranges into symbols is not present anywhere
// in the source this module was grounded on, so Decode7 always reports
// ErrUnsupported (see errors.go) rather than guess at the model.
package ppmd

import "io"

const binScale = 1 << 14 // PPMD_BIN_SCALE

// ByteSource supplies one compressed byte at a time; a failed read
// behaves like the reference decoder's EOF convention (0xFF), since the
// range coder has no way to signal read failure through its interface.
type ByteSource = io.ByteReader

// RangeDecoder is CPpmdRAR_RangeDec: a 32-bit carry-less range coder
// specific to RAR's embedding of PPMd7 (the 7z PPMd range coder differs
// and is not implemented here).
type RangeDecoder struct {
	src   ByteSource
	code  uint32
	low   uint32
	rng   uint32
	atEOF bool
}

// NewRangeDecoder constructs a decoder and performs PpmdRAR_RangeDec_Init's
// 4-byte priming read.
func NewRangeDecoder(src ByteSource) *RangeDecoder {
	d := &RangeDecoder{src: src, rng: 0xFFFFFFFF}
	for i := 0; i < 4; i++ {
		d.code = (d.code << 8) | uint32(d.readByte())
	}
	return d
}

func (d *RangeDecoder) readByte() byte {
	b, err := d.src.ReadByte()
	if err != nil {
		d.atEOF = true
		return 0xFF
	}
	return b
}

// AtEOF reports whether the underlying byte source has been exhausted.
func (d *RangeDecoder) AtEOF() bool { return d.atEOF }

// GetThreshold is Range_GetThreshold: narrows Range to one "tick" and
// returns which tick Code currently falls in.
func (d *RangeDecoder) GetThreshold(total uint32) uint32 {
	d.rng /= total
	return d.code / d.rng
}

// Decode is Range_Decode_RAR: commits to the [start, start+size) sub-range
// of the total GetThreshold was just called with, renormalizing by
// shifting in fresh bytes until Low/Low+Range no longer share a dead
// high byte.
func (d *RangeDecoder) Decode(start, size uint32) {
	d.low += start * d.rng
	d.code -= start * d.rng
	d.rng *= size
	for {
		if (d.low ^ (d.low + d.rng)) >= 1<<24 {
			if d.rng >= 1<<15 {
				break
			}
			d.rng = uint32(-int32(d.low)) & (1<<15 - 1)
		}
		d.code = (d.code << 8) | uint32(d.readByte())
		d.rng <<= 8
		d.low <<= 8
	}
}

// DecodeBit is Range_DecodeBit_RAR: the PPMd7 binary-context fast path,
// decoding a single bit against a size0/PPMD_BIN_SCALE split.
func (d *RangeDecoder) DecodeBit(size0 uint32) int {
	value := d.GetThreshold(binScale)
	if value < size0 {
		d.Decode(0, size0)
		return 0
	}
	d.Decode(size0, binScale-size0)
	return 1
}

// Decode7 would run symbol decoding through the Ppmd7 context-tree
// model built atop RangeDecoder; no such model exists in this port, so
// it always fails. Nothing in this module calls it:
// internal/raruncompress rejects a PPMd block with its own
// ErrUnsupported before any range decoding starts.
func Decode7(*RangeDecoder) (byte, error) {
	return 0, ErrUnsupported
}
