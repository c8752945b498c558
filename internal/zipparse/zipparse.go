// Package zipparse implements ZIP's three scanning passes (§4.8): the
// end-of-central-directory search (with ZIP64 locator/record follow-up),
// sequential central-directory iteration, and the local-header recovery
// scan used when the central directory is missing or damaged.
package zipparse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Signatures, §6.
const (
	SigLocalFileHeader         uint32 = 0x04034B50
	SigCentralDirectory        uint32 = 0x02014B50
	SigEndOfCentralDirectory64 uint32 = 0x06064B50
	SigEOCD64Locator           uint32 = 0x07064B50
	SigEndOfCentralDirectory   uint32 = 0x06054B50
)

// Compression methods a zip_entry.method field may carry, §4.10.
const (
	MethodStore    = 0
	MethodDeflate  = 8
	MethodDeflate64 = 9
	MethodBZIP2    = 12
	MethodLZMA     = 14
	MethodPPMd     = 98
)

// Fixed-size prefix lengths, §6.
const (
	LocalEntryFixedSize = 30
	DirEntryFixedSize   = 46
	EOCDSize            = 22
)

const sentinel32 = 0xFFFFFFFF
const sentinel16 = 0xFFFF

var (
	// ErrNotZIP means the stream has no EOCD and no recognizable local
	// file header: not a ZIP archive, not merely damaged.
	ErrNotZIP = errors.New("zipparse: not a ZIP archive")
	// ErrSpanned means the archive spans multiple disks, which this
	// reader doesn't support (matches the reference "spanning isn't
	// supported" rejection).
	ErrSpanned = errors.New("zipparse: archive spanning is not supported")
	errShort   = errors.New("zipparse: truncated record")
)

// Entry is a decoded local-file-header or central-directory record,
// unified into one struct the way struct zip_entry is reused for both
// in the reference implementation. Fields absent from whichever record
// was parsed are left zero.
type Entry struct {
	Signature     uint32
	Version       uint16
	MinVersion    uint16
	Flags         uint16
	Method        uint16
	DOSDate       uint32
	CRC32         uint32
	DataSize      uint64
	Uncompressed  uint64
	NameLen       uint16
	ExtraLen      uint16
	CommentLen    uint16
	Disk          uint32
	AttrInternal  uint16
	AttrExternal  uint32
	HeaderOffset  int64

	// HeaderOffset is only set from a central-directory record, where
	// it's the *local* header's offset; ParseLocalFileHeader leaves it
	// zero (its callers already know where that header started).
}

// EOCD64 is the end-of-central-directory record, promoted with ZIP64
// values where the base record carries 32/16-bit sentinels, §4.8/§6.
type EOCD64 struct {
	Signature       uint32
	Version         uint16
	MinVersion      uint16
	DiskNo          uint32
	DiskNoDir       uint32
	NumEntriesDisk  uint64
	NumEntries      uint64
	DirSize         uint64
	DirOffset       int64
	CommentLen      uint16
}

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", errShort, err)
	}
	return buf, nil
}
