// Package rarparse decodes the RAR container format down to entry
// headers (§4.9 / §6): the 7-byte magic, block headers with their CRC
// guard, file-entry headers for the v2/v3 compression engines, and RAR3's
// Unicode filename decompression.
package rarparse

// Signature is the 7-byte magic every RAR v2/v3 (and v1.5) archive opens
// with. RAR5 uses a different, longer signature and is out of scope.
var Signature = [7]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}

// HasSignature reports whether buf begins with the RAR magic.
func HasSignature(buf []byte) bool {
	if len(buf) < len(Signature) {
		return false
	}
	for i, b := range Signature {
		if buf[i] != b {
			return false
		}
	}
	return true
}
