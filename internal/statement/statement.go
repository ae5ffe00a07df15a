// Package statement holds the in-memory shapes shared by the import pipeline:
// draft transactions produced by parsers and the errors parsers report.
package statement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Format identifies which parser produced a draft. The set is closed; adding a
// format means adding a constant here and a detector/parser pair to the registry.
type Format string

const (
	FormatUnknown       Format = "unknown"
	FormatOFX           Format = "ofx"
	FormatQIF           Format = "qif"
	FormatBankOfAmerica Format = "csv:bofa"
	FormatChaseChecking Format = "csv:chase-checking"
	FormatChaseCredit   Format = "csv:chase-credit"
	FormatAmex          Format = "csv:amex"
	FormatCapitalOne    Format = "csv:capital-one"
	FormatCustom        Format = "csv:custom"
)

// Delimited reports whether the format is a CSV layout.
func (f Format) Delimited() bool {
	switch f {
	case FormatBankOfAmerica, FormatChaseChecking, FormatChaseCredit, FormatAmex, FormatCapitalOne, FormatCustom:
		return true
	}
	return false
}

// IssuerIDs reports whether records of this format carry issuer-guaranteed
// unique identifiers that outrank content hashing.
func (f Format) IssuerIDs() bool { return f == FormatOFX }

// Draft is a parsed, not yet persisted transaction.
type Draft struct {
	OccurredOn      time.Time       // calendar date, UTC midnight
	Amount          decimal.Decimal // positive = inflow
	RawDescription  string
	Merchant        string
	AccountLabel    string
	SourceReference string
	Category        string // bucket name, empty when unmapped
	OriginFormat    Format
	Line            int
}

// Date returns the ISO calendar date.
func (d Draft) Date() string { return d.OccurredOn.Format(time.DateOnly) }

// RowError records a single row that could not be normalized. The row is
// skipped; the file continues.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Reason) }

// FileStructureError means a whole file could not be parsed.
type FileStructureError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *FileStructureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

func (e *FileStructureError) Unwrap() error { return e.Err }

// ErrFormatUndetected is reported when no detector claims a file.
var ErrFormatUndetected = errors.New("unknown format")

// Parsed is what a parser hands back: successes and row errors, never one
// without the other being considered.
type Parsed struct {
	Drafts []Draft
	Errors []RowError
}

// DateRange returns the earliest and latest draft dates. ok is false when
// there are no drafts.
func (p Parsed) DateRange() (from, to time.Time, ok bool) {
	for i, d := range p.Drafts {
		if i == 0 || d.OccurredOn.Before(from) {
			from = d.OccurredOn
		}
		if i == 0 || d.OccurredOn.After(to) {
			to = d.OccurredOn
		}
	}
	return from, to, len(p.Drafts) > 0
}
