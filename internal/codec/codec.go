// Package codec decodes the raw bytes a legacy record stores: single-byte
// Western European strings and DBISAM day-count dates.
package codec

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// dbisamEpochOffset is the day count for 1970-01-01 in the DBISAM calendar.
const dbisamEpochOffset = 719163

// DecodeString decodes b as Windows-1252 and trims NUL and whitespace from
// both ends. Windows-1252 maps every byte value, so this never fails.
func DecodeString(b []byte) string {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// charmap.Windows1252 has no undefined code points; this is
		// unreachable in practice, but fall back rather than panic.
		decoded = b
	}
	return strings.Trim(string(decoded), "\x00 \t\r\n")
}

// DBISAMToISO converts a signed 32-bit DBISAM day count to an ISO-8601 date
// string. The second return value is false when days <= 0, meaning the
// caller should store SQL NULL instead of a string. Positive values whose
// date falls outside the four-digit years 0001-9999 clamp to "0001-01-01".
func DBISAMToISO(days int32) (string, bool) {
	if days <= 0 {
		return "", false
	}

	epochDays := int64(days) - dbisamEpochOffset
	t := time.Unix(epochDays*86400, 0).UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return "0001-01-01", true
	}
	return t.Format("2006-01-02"), true
}

// ISOToDBISAM is the inverse of DBISAMToISO, provided for tests and for
// callers that need to round-trip a date back into the legacy day-count
// representation.
func ISOToDBISAM(iso string) (int32, error) {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return 0, fmt.Errorf("codec: invalid ISO date %q: %w", iso, err)
	}
	days := t.Unix() / 86400
	return int32(days + dbisamEpochOffset), nil
}
