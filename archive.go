package unarr

import "io"

// backend is the one-implementation-selected-at-Open-and-never-switched
// interface §9 describes as "a tagged sum with a match-dispatched
// extract rather than dynamic dispatch": Go has no closed sum type, so
// this interface plus exactly one concrete type chosen once in Open is
// the idiomatic equivalent — there is never a type switch scattered
// through Archive's methods.
type backend interface {
	AtEOF() bool
	ParseNextEntry() (bool, error)
	ParseEntryAt(offset int64) (bool, error)
	Entry() *Entry
	Extract(dst []byte) (int, error)
	GlobalComment() []byte
	Close() error
}

// Option configures Open. The functional-options pattern keeps the
// common zero-option call (Open(stream)) trivial while leaving room for
// future knobs without breaking callers.
type Option func(*openOptions)

type openOptions struct {
	crcPolicy CrcPolicy
}

// WithCRCPolicy overrides the default CrcWarn behavior for this archive.
func WithCRCPolicy(p CrcPolicy) Option {
	return func(o *openOptions) { o.crcPolicy = p }
}

// Archive is a single opened archive handle (§3's top-level Archive
// variant), wrapping whichever format backend Open selected.
type Archive struct {
	stream    Stream
	backend   backend
	crcPolicy CrcPolicy
	crc       *crc32Writer
	extracted int64 // bytes delivered for the current entry so far
}

// Open probes stream against every supported format in §4.12's order
// (RAR, ZIP, 7z, TAR) and returns a handle bound to whichever one
// matches. The archive owns stream's lifetime from this point on: Close
// closes it.
func Open(stream Stream, opts ...Option) (*Archive, error) {
	o := openOptions{crcPolicy: CrcWarn}
	for _, opt := range opts {
		opt(&o)
	}

	b, err := probeFormat(stream)
	if err != nil {
		return nil, err
	}

	return &Archive{stream: stream, backend: b, crcPolicy: o.crcPolicy}, nil
}

// Close releases the backend and the underlying stream.
func (a *Archive) Close() error {
	berr := a.backend.Close()
	serr := a.stream.Close()
	if berr != nil {
		return berr
	}
	return serr
}

// AtEOF reports whether the archive has been fully walked (§6's
// at-eof).
func (a *Archive) AtEOF() bool { return a.backend.AtEOF() }

// ParseNextEntry advances to the next entry in container order (§6's
// parse-next-entry), returning false once AtEOF becomes true.
func (a *Archive) ParseNextEntry() (bool, error) {
	ok, err := a.backend.ParseNextEntry()
	if ok {
		a.resetExtractState()
	}
	return ok, err
}

// ParseEntryAt reselects the entry whose header begins at offset (§6's
// parse-entry-at), the value a caller previously read from Entry.Offset.
func (a *Archive) ParseEntryAt(offset int64) (bool, error) {
	ok, err := a.backend.ParseEntryAt(offset)
	if ok {
		a.resetExtractState()
	}
	return ok, err
}

// ParseEntryFor finds the entry named name via a linear search from the
// start of the archive (§6's parse-entry-for: "linear search from
// start" — no name index is maintained).
func (a *Archive) ParseEntryFor(name string) (bool, error) {
	if _, err := a.backend.ParseEntryAt(0); err != nil {
		return false, err
	}
	for {
		e := a.backend.Entry()
		if e != nil && e.Name == name {
			a.resetExtractState()
			return true, nil
		}
		ok, err := a.backend.ParseNextEntry()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
}

// Entry returns the currently selected entry's metadata, or nil if none
// is selected yet.
func (a *Archive) Entry() *Entry { return a.backend.Entry() }

func (a *Archive) resetExtractState() {
	a.crc = newCRC32Writer()
	a.extracted = 0
}

// Extract fills dst with the current entry's decompressed bytes,
// honoring §8's requirement that a read split across many calls match a
// single whole-entry read bit-for-bit, CRC included. The declared CRC32
// (when the format carries one) is checked once, at the io.EOF that
// signals the entry is fully delivered.
func (a *Archive) Extract(dst []byte) (int, error) {
	if a.crc == nil {
		a.resetExtractState()
	}
	n, err := a.backend.Extract(dst)
	if n > 0 {
		_, _ = a.crc.Write(dst[:n])
		a.extracted += int64(n)
	}
	if err == io.EOF {
		if cerr := a.checkCRC(); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}

func (a *Archive) checkCRC() error {
	e := a.backend.Entry()
	if e == nil || !e.hasCRC {
		return nil
	}
	if a.crc.Sum32() == e.declaredCRC {
		return nil
	}
	if a.crcPolicy == CrcStrict {
		return ErrBadCrc
	}
	pkgLog.WithField("entry", e.Name).Debug("unarr: CRC32 mismatch, returning bytes anyway")
	return nil
}

// GlobalComment returns the archive-level comment (ZIP only, per §6;
// empty for every other format).
func (a *Archive) GlobalComment() []byte { return a.backend.GlobalComment() }
