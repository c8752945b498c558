package zipparse

import "io"

// SeekToCompressedData is zip_seek_to_compressed_data: re-reads the local
// file header at localHeaderOffset (the reference implementation does
// this every time, rather than trusting the central-directory copy, in
// case the two disagree) and leaves r positioned at the first byte of
// compressed data. It returns the freshly parsed local header so the
// caller can reconcile method/dosdate mismatches the way the reference
// unpacker warns about instead of failing on.
func SeekToCompressedData(r io.ReadSeeker, localHeaderOffset int64) (*Entry, error) {
	if _, err := r.Seek(localHeaderOffset, io.SeekStart); err != nil {
		return nil, err
	}
	local, err := ParseLocalFileHeader(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(localHeaderOffset+LocalEntryFixedSize+int64(local.NameLen)+int64(local.ExtraLen), io.SeekStart); err != nil {
		return nil, err
	}
	return local, nil
}

// FindNextLocalFileEntry is zip_find_next_local_file_entry: it scans
// forward from offset for the next SigLocalFileHeader signature using a
// sliding 512-byte window, returning -1 if the stream is exhausted
// first. Nothing in this module calls it: the root package's ZIP backend
// fails Open when the central directory cannot be read and does not fall
// back to a local-header scan.
func FindNextLocalFileEntry(r io.ReadSeeker, offset int64) (int64, error) {
	const windowSize = 512
	var buf [windowSize]byte

	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return -1, err
	}
	count, _ := io.ReadFull(r, buf[:])

	for count >= LocalEntryFixedSize {
		for i := 0; i < count-4; i++ {
			if le32(buf[i:i+4]) == SigLocalFileHeader {
				return offset + int64(i), nil
			}
		}
		copy(buf[:4], buf[count-4:count])
		offset += int64(count - 4)
		n, _ := io.ReadFull(r, buf[4:])
		count = n + 4
	}

	return -1, nil
}
