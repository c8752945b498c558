package unarr

import (
	"errors"
	"io"
	"os"
)

// SeekOrigin mirrors §6's seek contract: absolute, relative-to-current, or
// relative-to-end.
type SeekOrigin int

const (
	SeekSet SeekOrigin = iota
	SeekCur
	SeekEnd
)

// Stream is the host-provided seekable byte source (§4.1). It generalizes
// the teacher's FileSystem interface (which only needed Stat/Open for
// volume discovery) into the full read/seek/tell contract the decompressors
// need mid-entry.
type Stream interface {
	// Read reads up to len(p) bytes, returning the actual count. A short
	// count at EOF is the normal signal, not an error — callers must not
	// treat read < len(p) as failure on its own (§6).
	Read(p []byte) (n int, err error)
	// Seek repositions the stream and reports success. Implementations
	// must support relative seeks spanning the full stream length.
	Seek(offset int64, origin SeekOrigin) (ok bool)
	// Tell returns the current absolute offset.
	Tell() int64
	// Size returns the stream length, or -1 if unknowable (e.g. a pure
	// callback stream with no stat capability).
	Size() int64
	// Close releases any resources the Stream itself opened. It must not
	// be called by library code other than the archive's own Close —
	// per §3, the Archive owns the stream's lifetime once passed to Open.
	Close() error
}

// --- file-backed stream -----------------------------------------------

type fileStream struct {
	f    *os.File
	size int64
}

// NewFileStream opens path and wraps it as a Stream. Mandatory backend
// per §4.1.
func NewFileStream(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileStream{f: f, size: st.Size()}, nil
}

func (s *fileStream) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *fileStream) Seek(offset int64, origin SeekOrigin) bool {
	_, err := s.f.Seek(offset, int(toIOOrigin(origin)))
	return err == nil
}

func (s *fileStream) Tell() int64 {
	off, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return off
}

func (s *fileStream) Size() int64  { return s.size }
func (s *fileStream) Close() error { return s.f.Close() }

func toIOOrigin(o SeekOrigin) int {
	switch o {
	case SeekCur:
		return io.SeekCurrent
	case SeekEnd:
		return io.SeekEnd
	default:
		return io.SeekStart
	}
}

// --- memory-backed stream -----------------------------------------------

type memStream struct {
	data []byte
	pos  int64
}

// NewMemoryStream wraps an in-memory byte slice as a Stream. Mandatory
// backend per §4.1; also the natural vehicle for unit tests that build
// synthetic archives the way rarlist_test.go built synthetic RAR headers.
func NewMemoryStream(data []byte) Stream {
	return &memStream{data: data}
}

func (s *memStream) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *memStream) Seek(offset int64, origin SeekOrigin) bool {
	var base int64
	switch origin {
	case SeekCur:
		base = s.pos
	case SeekEnd:
		base = int64(len(s.data))
	default:
		base = 0
	}
	np := base + offset
	if np < 0 || np > int64(len(s.data)) {
		return false
	}
	s.pos = np
	return true
}

func (s *memStream) Tell() int64   { return s.pos }
func (s *memStream) Size() int64   { return int64(len(s.data)) }
func (s *memStream) Close() error  { return nil }

// --- pluggable (callback) stream ----------------------------------------

// Callbacks lets a host embed unarr-go over any byte source (network
// socket, archive-inside-archive, virtual filesystem) without satisfying
// the full Stream interface directly — the §4.1 "pluggable backend
// required for embedding".
type Callbacks struct {
	Read  func(p []byte) (n int, err error)
	Seek  func(offset int64, origin SeekOrigin) bool
	Tell  func() int64
	Size  func() int64
	Close func() error
}

type callbackStream struct{ cb Callbacks }

// NewCallbackStream adapts host-provided callbacks into a Stream.
func NewCallbackStream(cb Callbacks) Stream { return &callbackStream{cb: cb} }

func (s *callbackStream) Read(p []byte) (int, error) { return s.cb.Read(p) }
func (s *callbackStream) Seek(offset int64, origin SeekOrigin) bool {
	return s.cb.Seek(offset, origin)
}
func (s *callbackStream) Tell() int64 { return s.cb.Tell() }
func (s *callbackStream) Size() int64 {
	if s.cb.Size == nil {
		return -1
	}
	return s.cb.Size()
}
func (s *callbackStream) Close() error {
	if s.cb.Close == nil {
		return nil
	}
	return s.cb.Close()
}

// readFull reads exactly len(p) bytes or returns ErrSourceShort, the way
// every format parser needs to for fixed-size header fields.
func readFull(s Stream, p []byte) error {
	n, err := io.ReadFull(streamReader{s}, p)
	if n == len(p) {
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return ErrSourceShort
}

// streamReader adapts Stream to io.Reader for use with io.ReadFull/bufio.
type streamReader struct{ s Stream }

func (r streamReader) Read(p []byte) (int, error) { return r.s.Read(p) }
