package tarparse

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrAtEOF means ParseNextEntry found the zeroed end-of-archive marker;
// the caller's at-eof predicate should now report true (§6).
var ErrAtEOF = errors.New("tarparse: end of archive")

// Reader iterates tar entries the way tar_parse_entry/tar_uncompress do:
// directory/PAX-global entries are skipped transparently, and a PAX
// extended header or GNU long-name record is consumed and folded into
// the *next* real entry's Name/FileSize/MTimeRaw before it's ever
// reported to the caller.
type Reader struct {
	stream io.ReadSeeker

	entry       *Entry
	offset      int64 // this entry's header offset
	nextOffset  int64 // where the following header starts
	bytesDone   int64
	lastSeenDir int64
	atEOF       bool
}

// NewReader parses the first header the way ar_open_tar_archive does.
func NewReader(stream io.ReadSeeker) (*Reader, error) {
	r := &Reader{stream: stream}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := r.ParseNextEntry(0); err != nil {
		return nil, err
	}
	return r, nil
}

// Entry returns the most recently parsed entry.
func (r *Reader) Entry() *Entry { return r.entry }

// AtEOF reports whether the end-of-archive marker has been seen.
func (r *Reader) AtEOF() bool { return r.atEOF }

// NextOffset reports where ParseNextEntry should be called again to
// advance past the current entry.
func (r *Reader) NextOffset() int64 { return r.nextOffset }

func (r *Reader) readBlock() ([]byte, error) {
	block := make([]byte, BlockSize)
	if _, err := io.ReadFull(r.stream, block); err != nil {
		return nil, err
	}
	return block, nil
}

// ParseNextEntry is tar_parse_entry: seeks to offset, parses the header
// there, and transparently skips/redirects through directory, PAX
// global, PAX extended, and GNU long-name records until a real file (or
// the end-of-archive marker) is reached.
func (r *Reader) ParseNextEntry(offset int64) error {
	if _, err := r.stream.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("tarparse: seek to %d: %w", offset, err)
	}
	block, err := r.readBlock()
	if err != nil {
		return fmt.Errorf("tarparse: read header @%d: %w", offset, err)
	}
	entry, ok, err := ParseHeader(block)
	if err != nil {
		return fmt.Errorf("tarparse: invalid header @%d: %w", offset, err)
	}
	if !ok || entry.Checksum == 0 {
		r.atEOF = true
		return ErrAtEOF
	}

	r.entry = entry
	r.offset = offset
	r.nextOffset = offset + BlockSize + paddedSize(entry.FileSize)
	r.bytesDone = 0
	if r.lastSeenDir > offset {
		r.lastSeenDir = 0
	}

	switch entry.FileType {
	case TypeFile, TypeFileOld:
		return nil
	case TypeDirectory:
		r.lastSeenDir = r.offset
		return r.ParseNextEntry(r.nextOffset)
	case TypePAXGlobal:
		return r.ParseNextEntry(r.nextOffset)
	case TypePAXExtended:
		return r.handlePAXExtended()
	case TypeGNULongName:
		return r.handleGNULongName()
	default:
		return nil
	}
}

// paddedSize rounds n up to the next BlockSize multiple.
func paddedSize(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

// handlePAXExtended is tar_handle_pax_extended: reads this special
// entry's own body, parses its key=value records, parses the header
// that follows, and — unless that header turned out to be a directory
// seen after this record started (last_seen_dir semantics) — overrides
// its Name/FileSize/MTimeRaw from the "path"/"size"/"mtime" records.
func (r *Reader) handlePAXExtended() error {
	offset := r.offset
	size := r.entry.FileSize

	data := make([]byte, size)
	if _, err := io.ReadFull(r.stream, data); err != nil {
		return fmt.Errorf("tarparse: read PAX extended header body @%d: %w", offset, err)
	}
	if err := r.ParseNextEntry(r.nextOffset); err != nil {
		return err
	}
	if r.lastSeenDir > offset {
		return nil
	}

	records, err := ParsePAXRecords(data)
	if err != nil {
		return fmt.Errorf("tarparse: PAX extended header @%d: %w", offset, err)
	}
	if path, ok := records["path"]; ok {
		r.entry.Name = path
	}
	if sizeStr, ok := records["size"]; ok {
		if n, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
			r.entry.FileSize = n
		}
	}
	if mtimeStr, ok := records["mtime"]; ok {
		if f, err := strconv.ParseFloat(mtimeStr, 64); err == nil {
			r.entry.MTimeRaw = uint64(f)
		}
	}

	r.offset = offset
	return nil
}

// handleGNULongName is tar_handle_gnu_longname: reads this special
// entry's own body as the long name, parses the header that follows,
// and overrides its Name unless a directory was seen after this record
// started. A name set by a PAX path record on that following header is
// overridden as well; a PAX path does not take precedence here.
func (r *Reader) handleGNULongName() error {
	offset := r.offset
	size := r.entry.FileSize

	longname := make([]byte, size)
	if _, err := io.ReadFull(r.stream, longname); err != nil {
		return fmt.Errorf("tarparse: read GNU long name body @%d: %w", offset, err)
	}
	if err := r.ParseNextEntry(r.nextOffset); err != nil {
		return err
	}
	if r.lastSeenDir > offset {
		return nil
	}

	name := longname
	if n := indexNUL(name); n >= 0 {
		name = name[:n]
	}
	r.entry.Name = DecodeEntryName(name)
	r.offset = offset
	return nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// Read implements tar_uncompress: a plain bounded read within the
// current entry's declared size, tar having no compression of its own.
func (r *Reader) Read(p []byte) (int, error) {
	remaining := r.entry.FileSize - r.bytesDone
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.stream.Read(p)
	r.bytesDone += int64(n)
	return n, err
}
