package zipparse

import (
	"fmt"
	"io"
)

// FindEndOfCentralDirectory is zip_find_end_of_central_directory:
// scans backward from the end of the stream for SigEndOfCentralDirectory,
// searching at most 64KiB-1 of comment plus the fixed EOCD size (a ZIP
// comment field is capped at 0xFFFF bytes). Returns the byte offset of
// the signature, or -1 if none is found.
func FindEndOfCentralDirectory(r io.ReadSeeker) (int64, error) {
	filesize, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, err
	}

	const chunk = 512
	var buf [chunk]byte
	fromEnd := int64(0)
	maxScan := int64(0xFFFF) + EOCDSize

	for fromEnd < maxScan && fromEnd < filesize {
		count := int64(chunk)
		if filesize-fromEnd < count {
			count = filesize - fromEnd
		}
		fromEnd += count
		if count < EOCDSize {
			return -1, nil
		}
		if _, err := r.Seek(-fromEnd, io.SeekEnd); err != nil {
			return -1, err
		}
		if _, err := io.ReadFull(r, buf[:count]); err != nil {
			return -1, err
		}
		for i := int(count) - EOCDSize; i >= 0; i-- {
			if le32(buf[i:i+4]) == SigEndOfCentralDirectory {
				return filesize - fromEnd + int64(i), nil
			}
		}
		fromEnd -= EOCDSize - 1
	}

	return -1, nil
}

// ParseEndOfCentralDirectory is zip_parse_end_of_central_directory: reads
// the base EOCD record at the stream's current position, then looks 42
// bytes further back for a ZIP64 locator; if present, follows it to the
// ZIP64 EOCD record and promotes any sentinel-valued field.
func ParseEndOfCentralDirectory(r io.ReadSeeker) (*EOCD64, error) {
	data, err := readFull(r, EOCDSize)
	if err != nil {
		return nil, err
	}

	eocd := &EOCD64{
		Signature:      le32(data[0:4]),
		DiskNo:         uint32(le16(data[4:6])),
		DiskNoDir:      uint32(le16(data[6:8])),
		NumEntriesDisk: uint64(le16(data[8:10])),
		NumEntries:     uint64(le16(data[10:12])),
		DirSize:        uint64(le32(data[12:16])),
		DirOffset:      int64(le32(data[16:20])),
		CommentLen:     le16(data[20:22]),
	}
	if eocd.Signature != SigEndOfCentralDirectory {
		return nil, fmt.Errorf("%w: bad EOCD signature", ErrNotZIP)
	}

	// Try to locate the ZIP64 end of central directory: the locator is a
	// fixed 20 bytes stored immediately before the 22-byte base EOCD
	// (hence -42 from the current position, which already sits just past
	// the base EOCD).
	if _, err := r.Seek(-42, io.SeekCurrent); err != nil {
		return eocd, nil
	}
	loc, err := readFull(r, 20)
	if err != nil {
		return eocd, nil
	}
	if le32(loc[0:4]) != SigEOCD64Locator {
		return eocd, nil
	}
	if (eocd.DiskNo != sentinel16 && le32(loc[4:8]) != eocd.DiskNo) || le32(loc[16:20]) != 1 {
		return nil, ErrSpanned
	}
	zip64Off := int64(le64(loc[8:16]))
	if _, err := r.Seek(zip64Off, io.SeekStart); err != nil {
		return nil, err
	}
	rec, err := readFull(r, 56)
	if err != nil {
		return nil, err
	}

	eocd.Signature = le32(rec[0:4])
	eocd.Version = le16(rec[12:14])
	eocd.MinVersion = le16(rec[14:16])
	if eocd.DiskNo == sentinel16 {
		eocd.DiskNo = le32(rec[16:20])
	}
	if eocd.DiskNoDir == sentinel16 {
		eocd.DiskNoDir = le32(rec[20:24])
	}
	if eocd.NumEntriesDisk == sentinel16 {
		eocd.NumEntriesDisk = le64(rec[24:32])
	}
	if eocd.NumEntries == sentinel16 {
		eocd.NumEntries = le64(rec[32:40])
	}
	if eocd.DirSize == sentinel32 {
		eocd.DirSize = le64(rec[40:48])
	}
	if eocd.DirOffset == sentinel32 {
		eocd.DirOffset = int64(le64(rec[48:56]))
	}

	if eocd.Signature != SigEndOfCentralDirectory64 {
		return nil, fmt.Errorf("%w: bad ZIP64 EOCD signature", ErrNotZIP)
	}
	if eocd.DiskNo != eocd.DiskNoDir || eocd.NumEntries != eocd.NumEntriesDisk {
		return nil, ErrSpanned
	}

	return eocd, nil
}

// FindEndOfLastDirectoryEntry is zip_find_end_of_last_directory_entry:
// walks every central-directory record from eocd.DirOffset, verifying
// each one's signature, and returns the offset just past the last
// record. Used to sanity-check a central directory before trusting it,
// and as the seam between the directory and any trailing archive
// comment.
func FindEndOfLastDirectoryEntry(r io.ReadSeeker, eocd *EOCD64) (int64, error) {
	if _, err := r.Seek(eocd.DirOffset, io.SeekStart); err != nil {
		return -1, err
	}
	for i := uint64(0); i < eocd.NumEntries; i++ {
		data, err := readFull(r, DirEntryFixedSize)
		if err != nil {
			return -1, nil
		}
		if le32(data[0:4]) != SigCentralDirectory {
			return -1, nil
		}
		skip := int64(le16(data[28:30])) + int64(le16(data[30:32])) + int64(le16(data[32:34]))
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return -1, nil
		}
	}
	return r.Seek(0, io.SeekCurrent)
}
