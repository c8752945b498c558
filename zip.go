package unarr

import (
	"errors"
	"fmt"
	"io"

	"github.com/javi11/unarr/internal/oem"
	"github.com/javi11/unarr/internal/zipparse"
	"github.com/javi11/unarr/internal/zipuncompress"
)

// zipEncryptedFlag is bit 0 of an entry's general-purpose flags field.
const zipEncryptedFlag = 1 << 0

// zipEntryInfo is one central-directory record plus its decoded name,
// the way zip.go's entry list needs nothing beyond what Iterate already
// hands back (§4.8's central-directory pass).
type zipEntryInfo struct {
	entry *zipparse.Entry
	name  string
}

// zipArchive is the ZIP backend (§3's Archive variant Zip). The central
// directory is read once, fully, at Open time; individual entries'
// compressed data is only touched on Extract, re-reading each local
// header first to reconcile against the central-directory copy the way
// zip_seek_to_compressed_data does.
type zipArchive struct {
	stream  Stream
	rs      io.ReadSeeker
	dir     *zipparse.Directory
	entries []zipEntryInfo

	cur    int
	entry  *Entry
	reader io.Reader
}

// probeZIP reports whether stream carries a locatable end-of-central-
// directory record (§4.12's second dispatcher probe: "ZIP (find EOCD)").
func probeZIP(stream Stream) (bool, error) {
	rs := streamSeeker{stream}
	off, err := zipparse.FindEndOfCentralDirectory(rs)
	if err != nil {
		return false, err
	}
	return off >= 0, nil
}

func newZIPArchive(stream Stream) (*zipArchive, error) {
	rs := streamSeeker{stream}
	dir, err := zipparse.OpenDirectory(rs)
	if err != nil {
		if errors.Is(err, zipparse.ErrNotZIP) {
			return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		if errors.Is(err, zipparse.ErrSpanned) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	a := &zipArchive{stream: stream, rs: rs, dir: dir, cur: -1}
	err = dir.Iterate(rs, func(e *zipparse.Entry, name string) error {
		a.entries = append(a.entries, zipEntryInfo{entry: e, name: name})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return a, nil
}

func (a *zipArchive) AtEOF() bool { return a.cur >= len(a.entries) }

func (a *zipArchive) ParseNextEntry() (bool, error) {
	next := a.cur + 1
	if next >= len(a.entries) {
		a.cur = len(a.entries)
		a.entry = nil
		return false, nil
	}
	a.cur = next
	a.entry = zipEntryToEntry(&a.entries[a.cur])
	a.reader = nil
	return true, nil
}

func (a *zipArchive) ParseEntryAt(offset int64) (bool, error) {
	for i := range a.entries {
		if a.entries[i].entry.HeaderOffset == offset {
			a.cur = i
			a.entry = zipEntryToEntry(&a.entries[i])
			a.reader = nil
			return true, nil
		}
	}
	return false, nil
}

func (a *zipArchive) Entry() *Entry { return a.entry }

func zipEntryToEntry(ei *zipEntryInfo) *Entry {
	return &Entry{
		Name:             ei.name,
		Offset:           ei.entry.HeaderOffset,
		UncompressedSize: ei.entry.Uncompressed,
		ModTime:          oem.DOSDateToTime(ei.entry.DOSDate),
		declaredCRC:      ei.entry.CRC32,
		hasCRC:           true,
	}
}

// Extract lazily opens the current entry's decompression reader on
// first call, re-reading its local header the way zip_parse_entry does
// before ever trusting the central directory's copy of method/flags.
func (a *zipArchive) Extract(dst []byte) (int, error) {
	if a.cur < 0 || a.cur >= len(a.entries) {
		return 0, io.EOF
	}
	if a.reader == nil {
		r, err := a.prepareEntry(&a.entries[a.cur])
		if err != nil {
			return 0, err
		}
		a.reader = r
	}
	return a.reader.Read(dst)
}

func (a *zipArchive) prepareEntry(ei *zipEntryInfo) (io.Reader, error) {
	if ei.entry.Flags&zipEncryptedFlag != 0 {
		return nil, ErrPasswordProtected
	}
	local, err := zipparse.SeekToCompressedData(a.rs, ei.entry.HeaderOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if local.Flags&zipEncryptedFlag != 0 {
		return nil, ErrPasswordProtected
	}
	r, err := zipuncompress.NewReader(local.Method, local.Flags, ei.entry.Uncompressed, a.rs)
	if err != nil {
		if errors.Is(err, zipuncompress.ErrUnsupportedMethod) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadBitstream, err)
	}
	return r, nil
}

// GlobalComment re-finds the EOCD and reads its trailing comment field
// (§6: ZIP-only, empty for every other format).
func (a *zipArchive) GlobalComment() []byte {
	off, err := zipparse.FindEndOfCentralDirectory(a.rs)
	if err != nil || off < 0 {
		return nil
	}
	if _, err := a.rs.Seek(off+20, io.SeekStart); err != nil {
		return nil
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(a.rs, lenBuf[:]); err != nil {
		return nil
	}
	n := int(lenBuf[0]) | int(lenBuf[1])<<8
	if n == 0 {
		return nil
	}
	comment := make([]byte, n)
	if _, err := io.ReadFull(a.rs, comment); err != nil {
		return nil
	}
	return comment
}

func (a *zipArchive) Close() error { return nil }
