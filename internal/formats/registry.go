// Package formats detects statement encodings and parses them into drafts.
//
// The set of formats is closed (statement.Format). The Registry maps each
// format to a detector and a parser; detectors run in registration order and
// the most specific claim wins, ties going to the earlier registration.
package formats

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

const (
	specificityGeneric  = 10
	specificityLayout   = 20
	specificityEnvelope = 30
)

// Match is a detector's claim on a document.
type Match struct {
	Format      statement.Format
	Mapping     string
	specificity int
}

// Detector inspects a document and optionally claims it. Detectors must not
// have side effects; a panic is treated as "no match".
type Detector func(doc *Document) (Match, bool)

// Parser turns a claimed document into drafts. Row problems go into
// Parsed.Errors; only a file level failure is returned as an error.
type Parser func(doc *Document, m Match) (statement.Parsed, error)

// Detection is the registry's verdict on a document.
type Detection struct {
	Format  statement.Format
	Mapping string
	// Hint names the closest known layout when Format is unknown.
	Hint string
}

// Options tune the parse of a single document.
type Options struct {
	// AccountLabel replaces the account label of every draft when set.
	AccountLabel string
	// Mapping forces the named custom column mapping.
	Mapping string
}

type entry struct {
	format statement.Format
	detect Detector
	parse  Parser
}

// Registry maps formats to detector/parser pairs.
type Registry struct {
	entries  []entry
	mappings *MappingSet
}

// NewRegistry returns a registry with every built-in format registered, most
// specific first. mappings may be nil.
func NewRegistry(mappings *MappingSet) *Registry {
	if mappings == nil {
		mappings = &MappingSet{}
	}
	r := &Registry{mappings: mappings}
	r.Register(statement.FormatOFX, detectOFX, parseOFX)
	r.Register(statement.FormatQIF, detectQIF, parseQIF)
	for _, l := range layouts {
		r.Register(l.format, l.detect, l.parse)
	}
	r.Register(statement.FormatCustom, mappings.detect, mappings.parse)
	return r
}

// Register adds a detector/parser pair, replacing the pair of an already
// registered format in place.
func (r *Registry) Register(f statement.Format, d Detector, p Parser) {
	for i := range r.entries {
		if r.entries[i].format == f {
			r.entries[i] = entry{format: f, detect: d, parse: p}
			return
		}
	}
	r.entries = append(r.entries, entry{format: f, detect: d, parse: p})
}

// Formats lists registered formats in registration order.
func (r *Registry) Formats() []statement.Format {
	out := make([]statement.Format, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.format
	}
	return out
}

// Mappings exposes the custom mappings the registry was built with.
func (r *Registry) Mappings() *MappingSet { return r.mappings }

// Detect runs every detector and keeps the most specific claim.
func (r *Registry) Detect(doc *Document) Detection {
	var best Match
	found := false
	for _, e := range r.entries {
		m, ok := safeDetect(e.detect, doc)
		if !ok {
			continue
		}
		if m.Format == "" {
			m.Format = e.format
		}
		if !found || m.specificity > best.specificity {
			best, found = m, true
		}
	}
	if !found {
		return Detection{Format: statement.FormatUnknown, Hint: closestLayout(doc)}
	}
	return Detection{Format: best.Format, Mapping: best.Mapping}
}

// Parse runs the parser for det. An unknown format yields
// statement.ErrFormatUndetected; it is never parsed as some default.
func (r *Registry) Parse(doc *Document, det Detection, opts Options) (statement.Parsed, error) {
	if opts.Mapping != "" {
		if _, ok := r.mappings.Get(opts.Mapping); !ok {
			return statement.Parsed{}, &statement.FileStructureError{
				Filename: doc.Filename,
				Reason:   fmt.Sprintf("no column mapping named %q", opts.Mapping),
			}
		}
		det = Detection{Format: statement.FormatCustom, Mapping: opts.Mapping}
	}
	if det.Format == statement.FormatUnknown || det.Format == "" {
		return statement.Parsed{}, fmt.Errorf("%s: %w", doc.Filename, statement.ErrFormatUndetected)
	}
	var parse Parser
	for _, e := range r.entries {
		if e.format == det.Format {
			parse = e.parse
			break
		}
	}
	if parse == nil {
		return statement.Parsed{}, fmt.Errorf("%s: %w: %s is not registered", doc.Filename, statement.ErrFormatUndetected, det.Format)
	}

	parsed, err := safeParse(parse, doc, Match{Format: det.Format, Mapping: det.Mapping})
	if err != nil {
		return statement.Parsed{}, err
	}
	for i := range parsed.Drafts {
		d := &parsed.Drafts[i]
		d.OriginFormat = det.Format
		if label := strings.TrimSpace(opts.AccountLabel); label != "" {
			d.AccountLabel = label
		}
		if d.Merchant == "" {
			d.Merchant = normalize.CleanMerchant(d.RawDescription)
		}
	}
	return parsed, nil
}

// Run decodes, detects and parses one file. When opts.Mapping is set
// detection is skipped.
func (r *Registry) Run(filename string, raw []byte, opts Options) (Detection, statement.Parsed, error) {
	doc, err := NewDocument(filename, raw)
	if err != nil {
		return Detection{Format: statement.FormatUnknown}, statement.Parsed{}, err
	}
	det := Detection{Format: statement.FormatCustom, Mapping: opts.Mapping}
	if opts.Mapping == "" {
		det = r.Detect(doc)
	}
	parsed, err := r.Parse(doc, det, opts)
	return det, parsed, err
}

func safeDetect(d Detector, doc *Document) (m Match, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			m, ok = Match{}, false
		}
	}()
	return d(doc)
}

func safeParse(p Parser, doc *Document, m Match) (parsed statement.Parsed, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			parsed = statement.Parsed{}
			err = &statement.FileStructureError{Filename: doc.Filename, Reason: fmt.Sprintf("parser failed: %v", rec)}
		}
	}()
	return p(doc, m)
}

// closestLayout compares the leading records of a delimited file with every
// known header and returns the nearest layout under a 0.4 normalized edit
// distance.
func closestLayout(doc *Document) string {
	records := leadingRecords(doc, ',', headerSearchDepth)
	best, bestScore := "", 0.4
	for _, rec := range records {
		got := strings.ToLower(strings.Join(trimRecord(rec), ","))
		if got == "" {
			continue
		}
		for _, l := range layouts {
			want := strings.ToLower(strings.Join(l.header, ","))
			dist := levenshtein.ComputeDistance(got, want)
			score := float64(dist) / float64(max(len(got), len(want)))
			if score < bestScore {
				best, bestScore = string(l.format), score
			}
		}
	}
	return best
}
