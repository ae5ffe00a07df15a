// Package dedup classifies fingerprinted drafts against persisted rows and
// against rows already accepted earlier in the same batch.
package dedup

import (
	"slices"

	"github.com/jask/moneyimport/internal/fingerprint"
	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

// Class is the outcome of classifying one draft.
type Class int

const (
	New Class = iota
	DuplicateExisting
	DuplicateInBatch
)

func (c Class) String() string {
	switch c {
	case New:
		return "new"
	case DuplicateExisting:
		return "duplicate_existing"
	case DuplicateInBatch:
		return "duplicate_in_batch"
	}
	return "unknown"
}

// Existing is the read-only snapshot of persisted fingerprints relevant to a
// batch.
type Existing struct {
	Scoped map[string]struct{}
	// UnscopedOwners maps an unscoped hash to the account labels it is
	// already persisted under.
	UnscopedOwners map[string][]string
}

func (e Existing) hasScoped(h string) bool {
	_, ok := e.Scoped[h]
	return ok
}

// Seen is the running set of scoped hashes accepted as new in the current
// fold, mapped to the index of the file that first contributed them.
type Seen map[string]int

// Classify decides a single draft. It does not record anything in seen.
func Classify(fp fingerprint.Fingerprint, existing Existing, seen Seen) Class {
	if existing.hasScoped(fp.Scoped) {
		return DuplicateExisting
	}
	if _, ok := seen[fp.Scoped]; ok {
		return DuplicateInBatch
	}
	return New
}

// Warning notes that a new row matches a transaction under another account
// label. It never changes classification.
type Warning struct {
	File          int
	Line          int
	Account       string
	OtherAccounts []string
}

// Outcome is the decision for one draft.
type Outcome struct {
	Draft       statement.Draft
	Fingerprint fingerprint.Fingerprint
	Class       Class
	// FirstFile is the file that first contributed the hash when Class is
	// DuplicateInBatch.
	FirstFile int
	Warning   *Warning
}

// Counts aggregates outcomes.
type Counts struct {
	New                int
	DuplicateExisting  int
	DuplicateInFile    int
	DuplicateCrossFile int
	CrossAccount       int
}

// DuplicateInBatch is the sum of in-file and cross-file duplicates.
func (c Counts) DuplicateInBatch() int { return c.DuplicateInFile + c.DuplicateCrossFile }

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.New += other.New
	c.DuplicateExisting += other.DuplicateExisting
	c.DuplicateInFile += other.DuplicateInFile
	c.DuplicateCrossFile += other.DuplicateCrossFile
	c.CrossAccount += other.CrossAccount
}

// FileResult is the per-file part of a resolution.
type FileResult struct {
	Index    int
	Outcomes []Outcome
	Counts   Counts
}

// Accepted returns the drafts classified as new.
func (r FileResult) Accepted() []Outcome {
	out := make([]Outcome, 0, r.Counts.New)
	for _, o := range r.Outcomes {
		if o.Class == New {
			out = append(out, o)
		}
	}
	return out
}

// Resolver carries the state of one fold over a batch's files.
type Resolver struct {
	existing Existing
	seen     Seen
	// unscoped hash -> accounts of rows accepted earlier in the fold
	batchOwners map[string][]string
}

// NewResolver starts a fold. seen may be nil.
func NewResolver(existing Existing, seen Seen) *Resolver {
	if seen == nil {
		seen = Seen{}
	}
	return &Resolver{existing: existing, seen: seen, batchOwners: map[string][]string{}}
}

// File classifies one file's drafts and records accepted hashes. Files must be
// fed in commit order.
func (r *Resolver) File(index int, drafts []statement.Draft) FileResult {
	res := FileResult{Index: index, Outcomes: make([]Outcome, 0, len(drafts))}
	for _, d := range drafts {
		fp := fingerprint.Compute(d)
		o := Outcome{Draft: d, Fingerprint: fp, Class: Classify(fp, r.existing, r.seen)}
		switch o.Class {
		case DuplicateExisting:
			res.Counts.DuplicateExisting++
		case DuplicateInBatch:
			o.FirstFile = r.seen[fp.Scoped]
			if o.FirstFile == index {
				res.Counts.DuplicateInFile++
			} else {
				res.Counts.DuplicateCrossFile++
			}
		case New:
			r.seen[fp.Scoped] = index
			res.Counts.New++
			if w := r.crossAccount(index, d, fp); w != nil {
				o.Warning = w
				res.Counts.CrossAccount++
			}
			account := normalize.Account(d.AccountLabel)
			if !slices.Contains(r.batchOwners[fp.Unscoped], account) {
				r.batchOwners[fp.Unscoped] = append(r.batchOwners[fp.Unscoped], account)
			}
		}
		res.Outcomes = append(res.Outcomes, o)
	}
	return res
}

func (r *Resolver) crossAccount(index int, d statement.Draft, fp fingerprint.Fingerprint) *Warning {
	account := normalize.Account(d.AccountLabel)
	var others []string
	for _, owners := range [][]string{r.existing.UnscopedOwners[fp.Unscoped], r.batchOwners[fp.Unscoped]} {
		for _, owner := range owners {
			n := normalize.Account(owner)
			if n != account && !slices.Contains(others, n) {
				others = append(others, n)
			}
		}
	}
	if len(others) == 0 {
		return nil
	}
	slices.Sort(others)
	return &Warning{File: index, Line: d.Line, Account: account, OtherAccounts: others}
}

// Resolve runs a full fold over files in the given order.
func Resolve(files [][]statement.Draft, existing Existing) ([]FileResult, Counts) {
	r := NewResolver(existing, nil)
	results := make([]FileResult, len(files))
	var total Counts
	for i, drafts := range files {
		results[i] = r.File(i, drafts)
		total.Add(results[i].Counts)
	}
	return results, total
}
