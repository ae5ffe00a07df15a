package normalize

import (
	"errors"
	"strings"
	"time"
)

// DefaultDateLayouts is tried when a caller supplies no layouts. US ordering
// wins over day-first because most supported exports are US issued.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"02 Jan 2006",
}

var errNoLayout = errors.New("no matching layout")

// ParseDate tries layouts in order and returns the first match as a UTC
// midnight calendar date.
func ParseDate(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &FormatError{Field: "date", Value: raw, Err: errors.New("empty")}
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, &FormatError{Field: "date", Value: raw, Err: errNoLayout}
}
