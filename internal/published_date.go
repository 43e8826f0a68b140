package internal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PublishedDate keeps whatever precision the source provided: a year, a
// year and month, or a full date. Zero Month/Day mean "not known".
type PublishedDate struct {
	Year  int
	Month int
	Day   int
}

var (
	reDateFull    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	reDateMonth   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	reDateYear    = regexp.MustCompile(`^(\d{4})$`)
	reDateCompact = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

// ParsePublishedDate accepts yyyy-MM-dd, yyyy-MM, yyyy, yyyyMMdd and ISO
// timestamps. Anything else (or an impossible month/day) yields nil.
func ParsePublishedDate(raw string) *PublishedDate {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if len(s) > 10 && s[4] == '-' && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}

	var parts []string
	switch {
	case reDateFull.MatchString(s):
		parts = reDateFull.FindStringSubmatch(s)[1:]
	case reDateCompact.MatchString(s):
		parts = reDateCompact.FindStringSubmatch(s)[1:]
	case reDateMonth.MatchString(s):
		parts = reDateMonth.FindStringSubmatch(s)[1:]
	case reDateYear.MatchString(s):
		parts = reDateYear.FindStringSubmatch(s)[1:]
	default:
		return nil
	}

	d := &PublishedDate{}
	d.Year, _ = strconv.Atoi(parts[0])
	if len(parts) > 1 {
		d.Month, _ = strconv.Atoi(parts[1])
		if d.Month < 1 || d.Month > 12 {
			return nil
		}
	}
	if len(parts) > 2 {
		d.Day, _ = strconv.Atoi(parts[2])
		if d.Day < 1 || d.Day > daysIn(d.Year, d.Month) {
			return nil
		}
	}
	return d
}

func (d PublishedDate) String() string {
	switch {
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

func (d PublishedDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *PublishedDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed := ParsePublishedDate(s)
	if parsed == nil {
		return fmt.Errorf("invalid published date: %q", s)
	}
	*d = *parsed
	return nil
}

func daysIn(year, month int) int {
	switch month {
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}
