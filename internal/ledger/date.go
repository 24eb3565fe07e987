package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

var monthAbbrev = map[int]string{
	1:  "Jan",
	2:  "Feb",
	3:  "Mar",
	4:  "Apr",
	5:  "May",
	6:  "Jun",
	7:  "Jul",
	8:  "Aug",
	9:  "Sep",
	10: "Oct",
	11: "Nov",
	12: "Dec",
}

// EntryDate is the session date read from the terminal header
type EntryDate struct {
	Month string // three letter abbreviation
	Day   string // two digits, as printed
	Year  string // four digits
}

// ParseEntryDate parses a terminal date in MM/DD/YY form. Years are always
// 2000+YY.
func ParseEntryDate(value string) (EntryDate, error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return EntryDate{}, fmt.Errorf("invalid date %q: expected MM/DD/YY", value)
	}

	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return EntryDate{}, fmt.Errorf("invalid month in %q: %w", value, err)
	}
	abbrev, ok := monthAbbrev[month]
	if !ok {
		return EntryDate{}, fmt.Errorf("invalid month in %q", value)
	}

	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return EntryDate{}, fmt.Errorf("invalid day in %q", value)
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 0 {
		return EntryDate{}, fmt.Errorf("invalid year in %q", value)
	}

	return EntryDate{
		Month: abbrev,
		Day:   parts[1],
		Year:  strconv.Itoa(2000 + year),
	}, nil
}

// Parts returns [month, day, year], e.g. ["Aug", "27", "2025"]
func (d EntryDate) Parts() []string {
	return []string{d.Month, d.Day, d.Year}
}

// String formats the date as it is typed into the terminal and used for the
// daily file name, e.g. "Aug 27, 2025"
func (d EntryDate) String() string {
	return fmt.Sprintf("%s %s, %s", d.Month, d.Day, d.Year)
}

// IsZero reports whether the date is unset
func (d EntryDate) IsZero() bool {
	return d == EntryDate{}
}
