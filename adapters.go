package unarr

import "io"

// streamSeeker adapts this package's own Stream (whose Seek returns a
// bool rather than (int64, error)) to io.ReadSeeker, the interface
// internal/zipparse and internal/tarparse are written directly against.
type streamSeeker struct{ s Stream }

func (r streamSeeker) Read(p []byte) (int, error) { return r.s.Read(p) }

func (r streamSeeker) Seek(offset int64, whence int) (int64, error) {
	origin := SeekSet
	switch whence {
	case io.SeekCurrent:
		origin = SeekCur
	case io.SeekEnd:
		origin = SeekEnd
	}
	if !r.s.Seek(offset, origin) {
		return 0, ErrSourceSeekFailed
	}
	return r.s.Tell(), nil
}

// streamReaderAt adapts Stream to io.ReaderAt, which internal/sevenzip's
// upstream library expects (NewReader(io.ReaderAt, size)). Built on
// seek-then-read rather than true positional access, which is safe only
// because §5 already establishes an archive handle is not safe for
// concurrent use from multiple goroutines.
type streamReaderAt struct{ s Stream }

func (r streamReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if !r.s.Seek(off, SeekSet) {
		return 0, ErrSourceSeekFailed
	}
	return io.ReadFull(streamReader{r.s}, p)
}
