package unarr

import "time"

// Entry is one archive member's metadata (§6's entry.* accessors),
// shared by all four format backends regardless of what underlying
// parser produced it.
type Entry struct {
	// Name is the entry's path as stored in the archive, already decoded
	// to UTF-8 (CP437 or archive-native Unicode names are converted by
	// the owning backend before an Entry is ever constructed).
	Name string
	// Offset is this entry's archive-relative header offset, the value
	// ParseEntryAt expects back to reselect it without a linear scan.
	Offset int64
	// UncompressedSize is the entry's declared decompressed size.
	UncompressedSize uint64
	// ModTime is the entry's last-modified time, normalized to UTC.
	ModTime time.Time

	// HostOS and Attributes are read-only passthrough of the archive's
	// own stored host-OS byte and attribute word, when the format
	// carries them (RAR only; ZIP/7z/TAR backends leave both zero).
	// Non-goals exclude restoring permissions on extraction, not
	// reporting the raw stored value.
	HostOS     byte
	Attributes uint32

	// declaredCRC and hasCRC capture the format's own stored checksum,
	// when it has one: RAR and ZIP entries carry a CRC32, 7z and TAR do
	// not. Extract only performs the §7 BadCrc check when hasCRC is true.
	declaredCRC uint32
	hasCRC      bool
}

// dosEpochOffset100ns is the number of 100ns ticks between the FILETIME
// epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC): §6's
// "(2*t1 - t2 + 11644473600) * 10^7" collapses to this additive constant
// once t1 and t2 both equal t, i.e. for a time.Time already in hand
// rather than DOS-date halves.
const dosEpochOffset100ns = 11644473600 * 10_000_000

// FileTime converts ModTime to a Windows FILETIME: 100ns ticks since
// 1601-01-01 UTC, per §6's entry.filetime() contract.
func (e *Entry) FileTime() int64 {
	unix100ns := e.ModTime.UnixNano() / 100
	return unix100ns + dosEpochOffset100ns
}
