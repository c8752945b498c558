// Package oem converts legacy MS-DOS OEM codepage text (RAR/ZIP/TAR
// entries written without a Unicode name flag) and DOS date-time fields
// to their UTF-8 and time.Time equivalents.
package oem

import (
	"time"

	"golang.org/x/text/encoding/charmap"
)

// DecodeCP437 converts a CP437-encoded byte string to UTF-8 via
// golang.org/x/text's own CodePage437 table, rather than a hand-rolled
// byte-to-rune array: every non-Unicode RAR/ZIP/TAR name field is
// encoded this way. CodePage437's decoder never errors (CP437 maps
// every byte value to some code point), so a failure here can only mean
// raw itself was nil.
func DecodeCP437(raw []byte) string {
	out, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// DOSDateToTime unpacks a 32-bit MS-DOS date-time field (seconds/2 in
// bits 0-4, minutes in 5-10, hours in 11-15, day in 16-20, month in
// 21-24, year-1980 in 25-31) into a time.Time. DOS timestamps carry no
// timezone; the reference decoder's local-then-UTC mktime/gmtime round
// trip exists only to strip the local offset glibc's mktime implies, so
// the direct equivalent here is to build the fields straight as UTC.
func DOSDateToTime(dosdate uint32) time.Time {
	sec := int((dosdate & 0x1F) * 2)
	minute := int((dosdate >> 5) & 0x3F)
	hour := int((dosdate >> 11) & 0x1F)
	day := int((dosdate >> 16) & 0x1F)
	month := time.Month((dosdate >> 21) & 0x0F)
	year := int((dosdate>>25)&0x7F) + 1980
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}
