// Package rarfilter implements the RAR-VM filter queue (§3, §4.5, §4.6):
// bytecode filter descriptors parsed out of a v3 entry's compressed stream,
// queued FIFO, and executed against the LZSS window's already-decompressed
// bytes either by recognizing one of four canonical fingerprints and
// running a native fast path, or by falling back to the general
// interpreter in internal/rarvm.
package rarfilter

import "github.com/javi11/unarr/internal/rarvm"

// Filter is one queued filter invocation: a reference to its compiled
// Program plus the registers and block geometry the descriptor carried
// (§3's "RAR Filter instance"). ProgramIndex indexes into the owning
// Arena rather than holding a pointer, per §9's arena-ownership note.
type Filter struct {
	ProgramIndex        int
	InitialRegs         [8]uint32
	GlobalData          []byte
	BlockStartPos       int64
	BlockLength         int64
	FilteredBlockAddr   uint32
	FilteredBlockLength uint32
}

// Arena owns every Program decoded for the lifetime of one entry's
// decompression, keyed by fingerprint so a repeated filter descriptor
// reuses its already-decoded Program (the reference implementation's
// "usage counter" bookkeeping, §3).
type Arena struct {
	programs []*rarvm.Program
	byFP     map[uint64]int
}

// NewArena creates an empty program arena.
func NewArena() *Arena {
	return &Arena{byFP: make(map[uint64]int)}
}

// Intern decodes code into a Program unless an equal-fingerprint Program
// is already cached, and returns its arena index.
func (a *Arena) Intern(code []byte) (int, error) {
	fp := rarvm.Fingerprint(code)
	if idx, ok := a.byFP[fp]; ok {
		a.programs[idx].UsageCount++
		return idx, nil
	}
	p, err := rarvm.Decode(code)
	if err != nil {
		return 0, err
	}
	idx := len(a.programs)
	a.programs = append(a.programs, p)
	a.byFP[fp] = idx
	return idx, nil
}

func (a *Arena) Program(idx int) *rarvm.Program { return a.programs[idx] }

// Len reports how many distinct programs have been interned so far.
func (a *Arena) Len() int { return len(a.programs) }

// Queue is the FIFO of pending filters for the current entry. FilterStart
// reports the lowest LZSS position any queued filter needs before it can
// fire, so the uncompressor knows how far ahead it must decode before the
// queue can make progress (§3).
type Queue struct {
	pending []Filter
}

func (q *Queue) Enqueue(f Filter) { q.pending = append(q.pending, f) }

func (q *Queue) Len() int { return len(q.pending) }

// Front returns the first queued filter without removing it.
func (q *Queue) Front() (Filter, bool) {
	if len(q.pending) == 0 {
		return Filter{}, false
	}
	return q.pending[0], true
}

// Dequeue removes and returns the first queued filter.
func (q *Queue) Dequeue() (Filter, bool) {
	f, ok := q.Front()
	if !ok {
		return Filter{}, false
	}
	q.pending = q.pending[1:]
	return f, true
}

// FilterStart returns the minimum BlockStartPos across all queued
// filters, or -1 if the queue is empty.
func (q *Queue) FilterStart() int64 {
	if len(q.pending) == 0 {
		return -1
	}
	min := q.pending[0].BlockStartPos
	for _, f := range q.pending[1:] {
		if f.BlockStartPos < min {
			min = f.BlockStartPos
		}
	}
	return min
}

func (q *Queue) Reset() { q.pending = nil }
