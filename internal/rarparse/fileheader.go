package rarparse

import (
	"fmt"
)

// Engine identifies which decompression engine a file entry's UnpVer byte
// selects. RAR 1.5 (UnpVer<20) is neither v2 nor v3 and is reported as
// unsupported rather than guessed at.
type Engine int

const (
	EngineUnsupported Engine = iota
	EngineV2
	EngineV3
)

// Method is the RAR compression-method byte (0x30..0x35).
type Method byte

const (
	MethodStore   Method = 0x30
	MethodFastest Method = 0x31
	MethodFast    Method = 0x32
	MethodNormal  Method = 0x33
	MethodGood    Method = 0x34
	MethodBest    Method = 0x35
)

// FileHeader is a decoded RAR v2/v3 file entry header (§3's "RAR Entry
// state").
type FileHeader struct {
	Block BlockHeader

	PackSize   uint64
	UnpSize    uint64
	HostOS     byte
	FileCRC    uint32
	FileTime   uint32 // DOS datetime, §6
	UnpVer     byte
	Method     Method
	Attr       uint32
	Name       string
	Solid      bool
	SplitAfter bool
	HasSalt    bool
	Salt       [8]byte

	HeaderSize int // total bytes this header occupies, for seeking past it
}

// Engine reports which decompression engine UnpVer selects. The
// reference unpacker recognizes exactly four version bytes (20 and 26
// for the v2 engine, 29 and 36 for v3); every other value — including
// gaps like 27/28 — is unsupported rather than rounded to the nearest
// engine.
func (h FileHeader) Engine() Engine {
	switch h.UnpVer {
	case 29, 36:
		return EngineV3
	case 20, 26:
		return EngineV2
	default:
		return EngineUnsupported
	}
}

// ParseFileHeader decodes a file entry header. buf must contain the
// header bytes that follow the 11-byte block prefix (Block.Size-11
// bytes, starting at the unpacked-size field), already read from the
// stream and CRC-verified by the caller via VerifyHeaderCRC.
//
// The fixed entry fields are only 21 bytes (size/os/crc/dosdate/
// version/method/namelen/attrs) and that "size" field is UnpSize, not
// PackSize: the packed size lives one level up, in the block header's
// own add-size field (set when FlagHasAddSize/FileFlagLongBlock is
// present). A file header always carries an add-size regardless of
// that flag being set on disk.
func ParseFileHeader(block BlockHeader, buf []byte) (FileHeader, error) {
	const fixedLen = 21
	if len(buf) < fixedLen {
		return FileHeader{}, fmt.Errorf("rarparse: %w: file header too short", errHeaderShort)
	}
	h := FileHeader{
		Block:      block,
		PackSize:   uint64(block.AddSize),
		UnpSize:    uint64(le32(buf[0:4])),
		HostOS:     buf[4],
		FileCRC:    le32(buf[5:9]),
		FileTime:   le32(buf[9:13]),
		UnpVer:     buf[13],
		Method:     Method(buf[14]),
		Attr:       le32(buf[17:21]),
	}
	nameSize := int(le16(buf[15:17]))
	pos := fixedLen

	if block.Flags&FileFlagLargeSize != 0 {
		if len(buf) < pos+8 {
			return FileHeader{}, fmt.Errorf("rarparse: %w: missing large-size fields", errHeaderShort)
		}
		highPack := le32(buf[pos : pos+4])
		highUnp := le32(buf[pos+4 : pos+8])
		h.PackSize |= uint64(highPack) << 32
		h.UnpSize |= uint64(highUnp) << 32
		pos += 8
	}

	if len(buf) < pos+nameSize {
		return FileHeader{}, fmt.Errorf("rarparse: %w: name field truncated", errHeaderShort)
	}
	nameBytes := buf[pos : pos+nameSize]
	pos += nameSize

	if block.Flags&FileFlagUnicodeName != 0 {
		h.Name = DecodeRAR3Name(nameBytes, len(nameBytes))
	} else {
		h.Name = string(nameBytes)
	}

	if block.Flags&FileFlagSalt != 0 {
		if len(buf) < pos+8 {
			return FileHeader{}, fmt.Errorf("rarparse: %w: missing salt", errHeaderShort)
		}
		copy(h.Salt[:], buf[pos:pos+8])
		h.HasSalt = true
		pos += 8
	}

	h.Solid = block.Flags&FileFlagSolid != 0
	h.SplitAfter = block.Flags&FileFlagSplitAfter != 0
	h.HeaderSize = int(block.Size)
	return h, nil
}
