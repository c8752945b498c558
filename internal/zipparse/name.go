package zipparse

import (
	"strings"

	"github.com/javi11/unarr/internal/oem"
)

// UTF8NameFlag is bit 11 of an entry's Flags field: when set, NameBytes
// is already UTF-8 and needs no codepage conversion (§6).
const UTF8NameFlag = 1 << 11

// DecodeName converts a raw name field to UTF-8 per flags (CP437 unless
// UTF8NameFlag is set, §4.8) and normalizes DOS path separators to '/'
// the way zip_get_name does.
func DecodeName(raw []byte, flags uint16) string {
	var name string
	if flags&UTF8NameFlag != 0 {
		name = string(raw)
	} else {
		name = oem.DecodeCP437(raw)
	}
	return strings.ReplaceAll(name, `\`, "/")
}
