// Package displayid formats and parses the citizen-facing complaint
// identifier. Complaints are stored internally as opaque integers; the
// display format exists only at the API/UI boundary.
package displayid

import (
	"fmt"
	"regexp"
	"strconv"
)

const prefix = "GRV"

var pattern = regexp.MustCompile(`^GRV-(\d{4})-(\d{5,})$`)

// Format renders id (filed in the given year) as "GRV-<yyyy>-<5-digit seq>".
// The sequence is zero-padded to 5 digits but never truncated, so ids beyond
// 99999 within a single year still round-trip.
func Format(year int, id int64) string {
	return fmt.Sprintf("%s-%04d-%05d", prefix, year, id)
}

// Parse recovers the filed year and internal id from a display id. It
// returns an error if s does not match the expected shape.
func Parse(s string) (year int, id int64, err error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("displayid: invalid format %q", s)
	}
	year, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("displayid: invalid year in %q: %w", s, err)
	}
	id, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("displayid: invalid sequence in %q: %w", s, err)
	}
	return year, id, nil
}
