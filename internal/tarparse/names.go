package tarparse

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/javi11/unarr/internal/oem"
)

// ParsePAXRecords is tar_handle_pax_extended's record walk: each record
// is `"%d %s=%s\n"` where the leading decimal is the record's own total
// length (including itself). Unknown keys are ignored; recognized keys
// are "path", "mtime", "size".
func ParsePAXRecords(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		eq := bytes.IndexByte(data, '=')
		if sp < 0 || eq < 0 || eq < sp || data[0] < '1' || data[0] > '9' {
			return nil, fmt.Errorf("tarparse: invalid PAX extended header record")
		}
		length, err := strconv.Atoi(string(data[:sp]))
		if err != nil || length <= 0 || length > len(data) || data[length-1] != '\n' {
			return nil, fmt.Errorf("tarparse: invalid PAX extended header record length")
		}
		key := string(data[sp+1 : eq])
		value := string(data[eq+1 : length-1])
		out[key] = value
		data = data[length:]
	}
	return out, nil
}

// DecodeEntryName converts a long-name buffer captured from a GNU
// long-name or raw header-name field to UTF-8: the reference parser
// can't know a name's encoding, so it keeps a name already valid UTF-8
// as-is and otherwise assumes CP437/OEM, exactly ar_conv_dos_to_utf8's
// fallback in tar_get_name/tar_handle_gnu_longname.
func DecodeEntryName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return oem.DecodeCP437(raw)
}
