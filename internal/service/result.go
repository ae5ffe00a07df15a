package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/moneyimport/internal/dedup"
	"github.com/jask/moneyimport/internal/statement"
)

// File is one uploaded statement.
type File struct {
	Name string
	Data []byte
	// Mapping forces a custom column mapping, for files previously reported
	// as unknown.
	Mapping string
	// Account labels every row of the file.
	Account string
}

// PreviewResult shows exactly what a commit would do.
type PreviewResult struct {
	Handle    string
	State     BatchState
	ExpiresAt time.Time
	Files     []FilePreview // upload order
	Aggregate Aggregate
	Warnings  []CrossAccountWarning
}

// FilePreview is the per-file part of a preview.
type FilePreview struct {
	Index    int
	Filename string
	Format   statement.Format
	Mapping  string
	// Hint names the closest known layout of an unknown file.
	Hint      string
	Accounts  []string
	From, To  time.Time
	Parsed    int
	RowErrors []statement.RowError
	// Error is set when the whole file failed.
	Error   string
	Counts  dedup.Counts
	Samples []SampleRow
}

// SampleRow is one draft as it would be classified.
type SampleRow struct {
	Line        int
	Date        string
	Amount      decimal.Decimal
	Description string
	Merchant    string
	Account     string
	Category    string
	Class       dedup.Class
}

// Aggregate totals a preview across files.
type Aggregate struct {
	TotalParsed                       int
	TotalRowErrors                    int
	FailedFiles                       int
	TotalNew                          int
	TotalDuplicateExisting            int
	TotalDuplicateInBatch             int
	TotalDuplicateCrossAccountWarning int
}

// CrossAccountWarning notes a new row that matches a transaction under a
// different account label. It is informational only.
type CrossAccountWarning struct {
	Filename      string
	Line          int
	Date          string
	Amount        decimal.Decimal
	Description   string
	Account       string
	OtherAccounts []string
}

// DuplicateCounts breaks skipped rows down by kind.
type DuplicateCounts struct {
	Existing            int
	InFile              int
	CrossFile           int
	CrossAccountWarning int
}

// InBatch is the sum of in-file and cross-file duplicates.
func (d DuplicateCounts) InBatch() int { return d.InFile + d.CrossFile }

// FileCommit is the per-file part of a commit, in commit order.
type FileCommit struct {
	Filename   string
	Format     statement.Format
	Parsed     int
	Persisted  int
	Duplicates DuplicateCounts
	RowErrors  int
}

// FileError is a file that contributed nothing because it failed as a whole.
type FileError struct {
	Filename string
	Reason   string
}

// CommitResult is what a successful confirmation reports.
type CommitResult struct {
	SessionID  string
	State      BatchState
	Persisted  int
	Duplicates DuplicateCounts
	Files      []FileCommit
	FileErrors []FileError
	Warnings   []CrossAccountWarning
}
