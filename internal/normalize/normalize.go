// Package normalize converts raw statement fields into canonical values.
// Every function is total: malformed input yields a *FormatError, never a panic,
// so parsers can skip and count bad rows instead of abandoning a file.
package normalize

import (
	"fmt"
	"strings"
)

// FormatError describes a field that could not be normalized.
type FormatError struct {
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Description canonicalizes free text for hashing: upper case, single spaces.
func Description(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(raw)), " ")
}

// Account canonicalizes an account label for hashing and comparison.
func Account(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
