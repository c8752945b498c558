// Package raruncompress implements RAR v2/v3 LZSS decompression (§4.6):
// the Huffman table re-read that opens every compressed block, symbol
// expansion against the shared LZSS window, the v3 recent-offset MRU and
// VM-filter queue, and the v2-only inline audio predictor. It is the glue
// that wires internal/huffman, internal/rarvm, internal/rarfilter and
// internal/lzss into the actual byte stream rar_uncompress_part drives.
//
// PPMd-compressed v3 blocks are detected and rejected with ErrUnsupported
// (see internal/ppmd): the RAR-specific PPMd range-decoder glue is real
// and portable, but no PPMd7 model implementation exists anywhere in the
// source this port was grounded on.
package raruncompress

import (
	"fmt"
	"io"

	"github.com/javi11/unarr/internal/bitreader"
	"github.com/javi11/unarr/internal/huffman"
	"github.com/javi11/unarr/internal/lzss"
)

// Decoder drives decompression across one solid run of entries sharing a
// single LZSS window and compressed bitstream (rar_uncompress_part's
// persistent ar_archive_rar state, §4.6). A non-solid entry calls
// BeginEntry with solid=false, which fully resets window and tables; a
// solid continuation leaves them untouched and only advances the
// accounting fields, mirroring rar_init_uncompress's "already
// initialized" early-return.
type Decoder struct {
	version int // 2 or 3, 0 before the first BeginEntry
	win     *lzss.Window
	br      *bitreader.Reader

	startNewTable bool
	bytesReady    int64 // LZSS-window bytes decoded but not yet delivered
	bytesDone     int64 // bytes delivered for the current entry
	solidTotal    int64 // cumulative uncompressed bytes of prior entries in this run
	entryTarget   int64 // current entry's declared uncompressed size

	v2 v2State
	v3 v3State
}

// NewDecoder allocates a Decoder with no state; the first BeginEntry call
// performs the real initialization (rar_init_uncompress, §4.6).
func NewDecoder() *Decoder {
	return &Decoder{}
}

func resolveEngine(unpVer byte) (int, error) {
	switch unpVer {
	case 29, 36:
		return 3, nil
	case 20, 26:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: version byte %d", errEngine, unpVer)
	}
}

// BeginEntry prepares the decoder for the next entry's compressed bytes.
// src is read starting at the entry's first compressed byte; for a solid
// continuation src is ignored (decoding picks up from wherever the
// shared bitreader left off) and the caller must not have advanced the
// underlying stream itself.
func (d *Decoder) BeginEntry(unpVer byte, src io.Reader, unpackedSize int64, solid bool) error {
	engine, err := resolveEngine(unpVer)
	if err != nil {
		return err
	}
	if !solid || d.version == 0 {
		if err := d.reset(engine); err != nil {
			return err
		}
		d.br = bitreader.New(src)
		d.solidTotal = 0
	} else if d.version != engine {
		return fmt.Errorf("%w: solid stream mixes v%d and v%d", errEngine, d.version, engine)
	} else {
		d.solidTotal += d.entryTarget
	}
	d.bytesDone = 0
	d.entryTarget = unpackedSize
	return nil
}

func (d *Decoder) reset(engine int) error {
	win, err := lzss.New(lzssWindowSize)
	if err != nil {
		return fmt.Errorf("raruncompress: %w", err)
	}
	d.win = win
	d.version = engine
	d.startNewTable = true
	d.bytesReady = 0
	d.bytesDone = 0
	d.solidTotal = 0
	d.v2 = v2State{}
	if engine == 3 {
		d.v3 = v3State{}
		d.v3.filters.init()
	}
	return nil
}

// Read fills p with decompressed bytes for the current entry, driving
// Huffman table re-reads, VM-filter execution and LZSS expansion as
// needed. It returns io.EOF once the entry's declared uncompressed size
// has been fully delivered (rar_uncompress_part, §4.6).
func (d *Decoder) Read(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if d.version == 3 && len(d.v3.filters.readyBytes) > 0 {
			n := copy(p[written:], d.v3.filters.readyBytes)
			d.v3.filters.readyBytes = d.v3.filters.readyBytes[n:]
			d.bytesDone += int64(n)
			written += n
			if d.bytesDone >= d.entryTarget {
				return written, io.EOF
			}
			continue
		}

		if d.bytesReady > 0 {
			n := int64(len(p) - written)
			if n > d.bytesReady {
				n = d.bytesReady
			}
			start := d.bytesDone + d.solidTotal
			if err := d.win.CopyRange(p[written:written+int(n)], start, n); err != nil {
				return written, fmt.Errorf("raruncompress: %w", err)
			}
			d.bytesReady -= n
			d.bytesDone += n
			written += int(n)
			if d.bytesDone >= d.entryTarget {
				return written, io.EOF
			}
			continue
		}

		if d.br.AtEOF() {
			return written, io.ErrUnexpectedEOF
		}

		if d.version == 3 && d.v3.filters.filterStart >= 0 && d.v3.filters.lastEnd == d.v3.filters.filterStart {
			if err := d.runFilters(); err != nil {
				return written, err
			}
			continue
		}

		if d.startNewTable {
			if err := d.parseCodes(); err != nil {
				return written, err
			}
		}

		end := d.bytesDone + d.solidTotal + lzssWindowSize - lzssOverflowSize
		if d.version == 3 && d.v3.filters.filterStart >= 0 && d.v3.filters.filterStart < end {
			end = d.v3.filters.filterStart
		}
		newEnd, err := d.expand(end)
		if err != nil {
			return written, err
		}
		if newEnd < d.bytesDone+d.solidTotal {
			return written, errBadBitstream
		}
		d.bytesReady = newEnd - d.bytesDone - d.solidTotal
		if d.version == 3 {
			d.v3.filters.lastEnd = newEnd
		}
	}
	return written, nil
}

func (d *Decoder) parseCodes() error {
	if d.version == 2 {
		return d.parseCodesV2()
	}
	return d.parseCodesV3()
}

func (d *Decoder) expand(end int64) (int64, error) {
	if d.version == 2 {
		return d.expandV2(end)
	}
	return d.expandV3(end)
}

// readSymbol is rar_read_next_symbol: huffman.Code already implements the
// fast-table-then-tree-walk decode, so this only wraps its error as
// errBadBitstream.
func readSymbol(br *bitreader.Reader, code *huffman.Code) (int32, error) {
	sym, err := code.ReadNext(br)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadBitstream, err)
	}
	return sym, nil
}

func buildCode(lengths []byte) (*huffman.Code, error) {
	l := make([]int, len(lengths))
	for i, v := range lengths {
		l[i] = int(v)
	}
	c, err := huffman.New(l)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBitstream, err)
	}
	return c, nil
}
