// Package zipinflate implements an independent, self-contained DEFLATE
// decompressor with the Deflate64 extension ZIP method 9 requires (§4.9):
// 16-bit-extra length code 285 (giving lengths up to 65538) and the two
// extra distance codes 30/31 (giving distances up to 65536). Plain ZIP
// method 8 (ordinary Deflate) is instead handled directly by
// klauspost/compress/flate in internal/zipuncompress — this package only
// exists for the Deflate64 case that dependency can't express.
//
// Ported from inflate.c's explicit step-by-step state machine (built for
// C's suspend/resume buffering contract), collapsed into a synchronous
// io.Reader the way internal/raruncompress collapses uncompress-rar.c's
// equivalent suspend/resume driver.
package zipinflate

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrCorrupt reports a structurally invalid Deflate/Deflate64 stream:
	// a bad block type, an out-of-range Huffman code, or a back-reference
	// distance further back than any byte produced so far.
	ErrCorrupt = errors.New("zipinflate: corrupt deflate stream")
)

// Reader decompresses a Deflate or Deflate64 stream on demand.
type Reader struct {
	br        *bitReader
	deflate64 bool

	win      [windowSize]byte
	winCount int64 // total bytes ever written to win

	pending []byte // decoded bytes not yet returned by Read
	final   bool   // a block with BFINAL set has been started; the next decodeBlock returns io.EOF
	err     error

	fixedLit  *huffTree
	fixedDist *huffTree
}

// NewReader wraps src, decoding it as Deflate64 if deflate64 is true and
// plain Deflate (RFC 1951) otherwise.
func NewReader(src io.ByteReader, deflate64 bool) *Reader {
	return &Reader{br: newBitReader(src), deflate64: deflate64}
}

func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if err := r.decodeBlock(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reader) output(b byte) {
	r.win[r.winCount%windowSize] = b
	r.winCount++
	r.pending = append(r.pending, b)
}

// decodeBlock decodes exactly one Deflate block (STEP_NEXT_BLOCK onward
// in inflate.c), appending its output to r.pending, or sets r.err to
// io.EOF once the final block has been fully processed.
func (r *Reader) decodeBlock() error {
	if r.final {
		return io.EOF
	}

	final, ok := r.br.readBits(1)
	if !ok {
		return io.ErrUnexpectedEOF
	}
	btype, ok := r.br.readBits(2)
	if !ok {
		return io.ErrUnexpectedEOF
	}
	if final == 1 {
		r.final = true
	}

	switch btype {
	case 0:
		return r.decodeStored()
	case 1:
		lit, dist, err := r.fixedTrees()
		if err != nil {
			return err
		}
		return r.decodeCompressed(lit, dist)
	case 2:
		lit, dist, err := r.dynamicTrees()
		if err != nil {
			return err
		}
		return r.decodeCompressed(lit, dist)
	default:
		return fmt.Errorf("%w: reserved block type 3", ErrCorrupt)
	}
}

func (r *Reader) decodeStored() error {
	r.br.alignByte()
	lenLo, ok := r.br.readByteAligned()
	if !ok {
		return io.ErrUnexpectedEOF
	}
	lenHi, ok := r.br.readByteAligned()
	if !ok {
		return io.ErrUnexpectedEOF
	}
	if _, ok := r.br.readByteAligned(); !ok { // NLEN low byte, unchecked like inflate.c
		return io.ErrUnexpectedEOF
	}
	if _, ok := r.br.readByteAligned(); !ok { // NLEN high byte
		return io.ErrUnexpectedEOF
	}
	n := int(lenLo) | int(lenHi)<<8
	for i := 0; i < n; i++ {
		b, ok := r.br.readByteAligned()
		if !ok {
			return io.ErrUnexpectedEOF
		}
		r.output(b)
	}
	return nil
}

func (r *Reader) fixedTrees() (*huffTree, *huffTree, error) {
	if r.fixedLit == nil {
		lengths := make([]int, 288)
		for i := 0; i < 144; i++ {
			lengths[i] = 8
		}
		for i := 144; i < 256; i++ {
			lengths[i] = 9
		}
		for i := 256; i < 280; i++ {
			lengths[i] = 7
		}
		for i := 280; i < 288; i++ {
			lengths[i] = 8
		}
		lit, err := buildTree(lengths)
		if err != nil {
			return nil, nil, err
		}
		distLengths := make([]int, 32)
		for i := range distLengths {
			distLengths[i] = 5
		}
		dist, err := buildTree(distLengths)
		if err != nil {
			return nil, nil, err
		}
		r.fixedLit, r.fixedDist = lit, dist
	}
	return r.fixedLit, r.fixedDist, nil
}

// dynamicTrees is STEP_INFLATE_DYNAMIC_INIT/_PRETREE/_TREES: reads
// HLIT/HDIST/HCLEN, the code-length pretree, then the literal/length and
// distance code length sequences (with the 16/17/18 run-length escapes)
// and builds both trees from them.
func (r *Reader) dynamicTrees() (*huffTree, *huffTree, error) {
	hlit, ok := r.br.readBits(5)
	if !ok {
		return nil, nil, io.ErrUnexpectedEOF
	}
	hdist, ok := r.br.readBits(5)
	if !ok {
		return nil, nil, io.ErrUnexpectedEOF
	}
	hclen, ok := r.br.readBits(4)
	if !ok {
		return nil, nil, io.ErrUnexpectedEOF
	}
	nlit := int(hlit) + 257
	ndist := int(hdist) + 1
	nclen := int(hclen) + 4

	clLengths := make([]int, 19)
	for i := 0; i < nclen; i++ {
		v, ok := r.br.readBits(3)
		if !ok {
			return nil, nil, io.ErrUnexpectedEOF
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clTree, err := buildTree(clLengths)
	if err != nil {
		return nil, nil, err
	}

	allLengths := make([]int, nlit+ndist)
	for i := 0; i < len(allLengths); {
		sym, ok := clTree.decode(r.br)
		if !ok {
			return nil, nil, io.ErrUnexpectedEOF
		}
		switch {
		case sym < 16:
			allLengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, fmt.Errorf("%w: repeat with no previous length", ErrCorrupt)
			}
			n, ok := r.br.readBits(2)
			if !ok {
				return nil, nil, io.ErrUnexpectedEOF
			}
			prev := allLengths[i-1]
			for j := 0; j < int(n)+3 && i < len(allLengths); j++ {
				allLengths[i] = prev
				i++
			}
		case sym == 17:
			n, ok := r.br.readBits(3)
			if !ok {
				return nil, nil, io.ErrUnexpectedEOF
			}
			i += int(n) + 3
		case sym == 18:
			n, ok := r.br.readBits(7)
			if !ok {
				return nil, nil, io.ErrUnexpectedEOF
			}
			i += int(n) + 11
		default:
			return nil, nil, fmt.Errorf("%w: invalid code-length symbol %d", ErrCorrupt, sym)
		}
	}

	lit, err := buildTree(allLengths[:nlit])
	if err != nil {
		return nil, nil, err
	}
	dist, err := buildTree(allLengths[nlit:])
	if err != nil {
		return nil, nil, err
	}
	return lit, dist, nil
}

// decodeCompressed is STEP_INFLATE onward: the literal/length/distance
// symbol loop shared by fixed and dynamic blocks.
func (r *Reader) decodeCompressed(lit, dist *huffTree) error {
	for {
		sym, ok := lit.decode(r.br)
		if !ok {
			return io.ErrUnexpectedEOF
		}
		if sym < 256 {
			r.output(byte(sym))
			continue
		}
		if sym == 256 {
			return nil
		}
		if sym > 285 {
			return fmt.Errorf("%w: invalid length symbol %d", ErrCorrupt, sym)
		}

		li := sym - 257
		if r.deflate64 && sym == 285 {
			li = 29 // Deflate64's 16-extra-bit replacement for code 285
		}
		lt := lengthTable[li]
		extra, ok := r.br.readBits(lt.bits)
		if !ok {
			return io.ErrUnexpectedEOF
		}
		length := lt.base + int(extra)

		dsym, ok := dist.decode(r.br)
		if !ok {
			return io.ErrUnexpectedEOF
		}
		if dsym > 31 || (dsym > 29 && !r.deflate64) {
			return fmt.Errorf("%w: invalid distance symbol %d", ErrCorrupt, dsym)
		}
		dt := distTable[dsym]
		dextra, ok := r.br.readBits(dt.bits)
		if !ok {
			return io.ErrUnexpectedEOF
		}
		distance := dt.base + int(dextra)
		if int64(distance) > r.winCount {
			return fmt.Errorf("%w: distance %d exceeds %d bytes produced so far", ErrCorrupt, distance, r.winCount)
		}

		start := r.winCount - int64(distance)
		for i := 0; i < length; i++ {
			r.output(r.win[(start+int64(i))%windowSize])
		}
	}
}
