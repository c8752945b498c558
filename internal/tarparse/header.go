package tarparse

import "fmt"

func isOctalField(data []byte) bool {
	for _, b := range data {
		if (b < '0' || '7' < b) && b != ' ' && b != 0 {
			return false
		}
	}
	return true
}

// parseOctal is tar_parse_number: reads an octal field, skipping spaces
// and NULs, stopping (not failing) at the first non-octal byte.
func parseOctal(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		if b == ' ' || b == 0 {
			continue
		}
		if b < '0' || '7' < b {
			break
		}
		v = v*8 + uint64(b-'0')
	}
	return v
}

func isZeroedBlock(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseHeader decodes one 512-byte tar header block. A fully zeroed
// block is the end-of-archive marker (tar_parse_header returns true with
// a zeroed Entry in that case, rather than an error, since it's a valid
// terminator, not corruption) — ok is false to signal it.
//
// The old pre-POSIX convention packs a trailing '/' into the 100-byte
// name field to mark a directory instead of using TypeDirectory; that's
// translated here the same way tar_parse_header does.
func ParseHeader(block []byte) (entry *Entry, ok bool, err error) {
	if len(block) != BlockSize {
		return nil, false, errShort
	}
	if isZeroedBlock(block) {
		return &Entry{}, false, nil
	}

	sizeField := block[124:136]
	mtimeField := block[136:148]
	chksumField := block[148:156]
	if !isOctalField(sizeField) || !isOctalField(mtimeField) || !isOctalField(chksumField) {
		return nil, false, ErrBadField
	}

	e := &Entry{
		FileSize: int64(parseOctal(sizeField)),
		MTimeRaw: parseOctal(mtimeField),
		Checksum: uint32(parseOctal(chksumField)),
		FileType: block[156],
	}

	if e.FileType == TypeFileOld {
		i := 100
		for i > 0 && block[i-1] == 0 {
			i--
		}
		if i > 0 && block[i-1] == '/' {
			e.FileType = TypeDirectory
		}
	}
	e.IsUSTAR = string(block[257:265]) == "ustar\x0000" && string(block[508:512]) != "tar\x00"

	e.Name = decodeHeaderName(block, e.IsUSTAR)

	computed, computedSigned := checksums(block)
	stored := e.Checksum
	if computed != stored {
		if uint32(computedSigned) == stored {
			// A historical tar implementation summed the header bytes as
			// signed chars; tolerate it the way tar_parse_header does,
			// trusting the recomputed unsigned value afterward.
			e.Checksum = computed
		} else {
			return nil, false, fmt.Errorf("%w: stored %#x, computed %#x/%#x", ErrBadChecksum, stored, computed, uint32(computedSigned))
		}
	}

	return e, true, nil
}

// checksums sums the header block with its own checksum field blanked
// to eight spaces, both as unsigned and as signed bytes (tar_parse_header
// computes both to tolerate the signed-char quirk some tar writers
// carry forward).
func checksums(block []byte) (unsigned uint32, signed int32) {
	buf := make([]byte, BlockSize)
	copy(buf, block)
	for i := 148; i < 156; i++ {
		buf[i] = ' '
	}
	for _, b := range buf {
		unsigned += uint32(b)
		signed += int32(int8(b))
	}
	return unsigned, signed
}

// decodeHeaderName reads the 100-byte name field and, for a USTAR
// header, prepends the 155-byte prefix field (offset 345) with a '/'
// separator — tar_get_name's layout, applied directly against the
// already-buffered header block instead of a second stream read.
func decodeHeaderName(block []byte, isUSTAR bool) string {
	name := cString(block[0:100])
	if !isUSTAR {
		return name
	}
	prefix := cString(block[345:500])
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
