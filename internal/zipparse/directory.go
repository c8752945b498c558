package zipparse

import (
	"fmt"
	"io"
)

// Directory is a successfully located and validated central directory
// (§4.8): iterating it yields every entry in order without needing to
// re-seek through local headers first.
type Directory struct {
	EOCD      *EOCD64
	EndOffset int64
}

// OpenDirectory finds the EOCD, parses it (following a ZIP64 locator if
// present), and verifies every central-directory record it claims is
// actually reachable and well-signed, mirroring the reference
// implementation's "does the directory check out" gate before trusting
// it for iteration.
func OpenDirectory(r io.ReadSeeker) (*Directory, error) {
	off, err := FindEndOfCentralDirectory(r)
	if err != nil {
		return nil, err
	}
	if off < 0 {
		return nil, ErrNotZIP
	}
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	eocd, err := ParseEndOfCentralDirectory(r)
	if err != nil {
		return nil, err
	}
	end, err := FindEndOfLastDirectoryEntry(r, eocd)
	if err != nil {
		return nil, err
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: central directory record missing or badly signed", errShort)
	}
	return &Directory{EOCD: eocd, EndOffset: end}, nil
}

// Iterate walks every central-directory entry in order, starting from
// d.EOCD.DirOffset, calling fn with each decoded entry and its name. It
// stops at the first error fn returns or the first parse failure.
//
// Matching zip_get_name's own approach, the name is fetched by parsing
// the record once (which skips over the name field to reach the extra
// fields, per parseExtraFields) and then seeking back to read the name
// bytes directly, rather than threading name-capture into the skip
// logic every other caller relies on.
func (d *Directory) Iterate(r io.ReadSeeker, fn func(*Entry, string) error) error {
	if _, err := r.Seek(d.EOCD.DirOffset, io.SeekStart); err != nil {
		return err
	}
	for i := uint64(0); i < d.EOCD.NumEntries; i++ {
		entryStart, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		e, err := ParseDirectoryEntry(r)
		if err != nil {
			return err
		}
		if _, err := r.Seek(entryStart+DirEntryFixedSize, io.SeekStart); err != nil {
			return err
		}
		nameBuf, err := readFull(r, int(e.NameLen))
		if err != nil {
			return err
		}
		name := DecodeName(nameBuf, e.Flags)
		next := entryStart + DirEntryFixedSize + int64(e.NameLen) + int64(e.ExtraLen) + int64(e.CommentLen)
		if _, err := r.Seek(next, io.SeekStart); err != nil {
			return err
		}
		if err := fn(e, name); err != nil {
			return err
		}
	}
	return nil
}
