package zipparse

import (
	"fmt"
	"io"
)

// ParseLocalFileHeader is zip_parse_local_file_entry: reads the 30-byte
// fixed local-file-header at the stream's current position. The caller
// is responsible for then skipping NameLen+ExtraLen bytes to reach the
// compressed data.
func ParseLocalFileHeader(r io.ReadSeeker) (*Entry, error) {
	data, err := readFull(r, LocalEntryFixedSize)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Signature:    le32(data[0:4]),
		Version:      le16(data[4:6]),
		Flags:        le16(data[6:8]),
		Method:       le16(data[8:10]),
		DOSDate:      le32(data[10:14]),
		CRC32:        le32(data[14:18]),
		DataSize:     uint64(le32(data[18:22])),
		Uncompressed: uint64(le32(data[22:26])),
		NameLen:      le16(data[26:28]),
		ExtraLen:     le16(data[28:30]),
	}
	if e.Signature != SigLocalFileHeader {
		return nil, fmt.Errorf("%w: bad local file header signature", ErrNotZIP)
	}
	if err := parseExtraFields(r, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseDirectoryEntry is zip_parse_directory_entry: reads the 46-byte
// fixed central-directory record at the stream's current position.
func ParseDirectoryEntry(r io.ReadSeeker) (*Entry, error) {
	data, err := readFull(r, DirEntryFixedSize)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Signature:    le32(data[0:4]),
		Version:      le16(data[4:6]),
		MinVersion:   le16(data[6:8]),
		Flags:        le16(data[8:10]),
		Method:       le16(data[10:12]),
		DOSDate:      le32(data[12:16]),
		CRC32:        le32(data[16:20]),
		DataSize:     uint64(le32(data[20:24])),
		Uncompressed: uint64(le32(data[24:28])),
		NameLen:      le16(data[28:30]),
		ExtraLen:     le16(data[30:32]),
		CommentLen:   le16(data[32:34]),
		Disk:         uint32(le16(data[34:36])),
		AttrInternal: le16(data[36:38]),
		AttrExternal: le32(data[38:42]),
		HeaderOffset: int64(le32(data[42:46])),
	}
	if e.Signature != SigCentralDirectory {
		return nil, fmt.Errorf("%w: bad central directory signature", ErrNotZIP)
	}
	if err := parseExtraFields(r, e); err != nil {
		return nil, err
	}
	return e, nil
}

// parseExtraFields is zip_parse_extra_fields: reads past the name field
// (already positioned right after the fixed header) into the extra-field
// block, looking for a ZIP64 extended-information tag (0x0001) to
// promote any 32/16-bit sentinel value to its real 64-bit size.
//
// Only the first ZIP64 record is consulted, matching the reference
// parser's single "break" on tag match; a well-formed entry carries at
// most one.
func parseExtraFields(r io.ReadSeeker, e *Entry) error {
	if e.ExtraLen == 0 {
		return nil
	}
	if _, err := r.Seek(int64(e.NameLen), io.SeekCurrent); err != nil {
		return err
	}
	extra, err := readFull(r, int(e.ExtraLen))
	if err != nil {
		return err
	}

	for idx := 0; idx+4 < len(extra); {
		size := le16(extra[idx+2 : idx+4])
		if le16(extra[idx:idx+2]) == 0x0001 {
			off := uint16(0)
			if e.Uncompressed == sentinel32 && off+8 <= size {
				e.Uncompressed = le64(extra[idx+4+int(off):])
				off += 8
			}
			if e.DataSize == sentinel32 && off+8 <= size {
				e.DataSize = le64(extra[idx+4+int(off):])
				off += 8
			}
			if e.HeaderOffset == sentinel32 && off+8 <= size {
				e.HeaderOffset = int64(le64(extra[idx+4+int(off):]))
				off += 8
			}
			if e.Disk == sentinel16 && off+4 <= size {
				e.Disk = le32(extra[idx+4+int(off):])
				off += 4
			}
			break
		}
		idx += 4 + int(size)
	}

	// The stream now sits just past the extra-field block (no seek is
	// needed). With no extra field, the early return above leaves it just
	// past the fixed header instead; SeekToCompressedData and Iterate
	// both seek to absolute offsets rather than relying on either.
	return nil
}
