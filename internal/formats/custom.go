package formats

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

// Mapping describes a delimited export the built-in layouts do not know.
// Column numbers are zero-based.
type Mapping struct {
	Name          string   `toml:"name"`
	Description   string   `toml:"description"`
	Header        []string `toml:"header"`     // exact header row; enables auto-detection
	Delimiter     string   `toml:"delimiter"`
	HasHeader     bool     `toml:"has_header"`
	DateFormats   []string `toml:"date_formats"`
	DateCol       int      `toml:"date_col"`
	AmountCol     *int     `toml:"amount_col"`
	DebitCol      *int     `toml:"debit_col"`
	CreditCol     *int     `toml:"credit_col"`
	DescCol       int      `toml:"desc_col"`
	DescJoin      bool     `toml:"desc_join"`    // join desc_col..end
	AmountStrip   string   `toml:"amount_strip"` // chars to strip from amounts
	InvertAmounts bool     `toml:"invert_amounts"`
	CategoryCol   *int     `toml:"category_col"`
	ReferenceCol  *int     `toml:"reference_col"`
	Account       string   `toml:"account"`
}

type mappingFile struct {
	Mapping []Mapping `toml:"mapping"`
}

// MappingSet is the loaded collection of custom mappings.
type MappingSet struct {
	list []Mapping
}

// LoadMappings reads a mapping file. A missing file yields an empty set.
func LoadMappings(path string) (*MappingSet, error) {
	if strings.TrimSpace(path) == "" {
		return &MappingSet{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &MappingSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mappings %s: %w", path, err)
	}
	set, err := ParseMappings(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// ParseMappings decodes TOML [[mapping]] blocks.
func ParseMappings(data string) (*MappingSet, error) {
	var mf mappingFile
	if _, err := toml.Decode(data, &mf); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	seen := map[string]bool{}
	for i := range mf.Mapping {
		m := &mf.Mapping[i]
		m.Name = strings.TrimSpace(m.Name)
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i+1, err)
		}
		key := strings.ToLower(m.Name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate mapping name %q", m.Name)
		}
		seen[key] = true
	}
	return &MappingSet{list: mf.Mapping}, nil
}

func (m Mapping) validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(m.Delimiter) > 1 {
		return fmt.Errorf("%s: delimiter must be a single character", m.Name)
	}
	if m.DateCol < 0 || m.DescCol < 0 {
		return fmt.Errorf("%s: column numbers must not be negative", m.Name)
	}
	if m.AmountCol == nil && m.DebitCol == nil && m.CreditCol == nil {
		return fmt.Errorf("%s: amount_col or debit_col/credit_col is required", m.Name)
	}
	return nil
}

func (m Mapping) comma() rune {
	if r, _ := utf8.DecodeRuneInString(m.Delimiter); r != utf8.RuneError {
		return r
	}
	return ','
}

func (m Mapping) spec() rowSpec {
	layouts := m.DateFormats
	if len(layouts) == 0 {
		layouts = normalize.DefaultDateLayouts
	}
	sign := normalize.SignAsIs
	if m.InvertAmounts {
		sign = normalize.SignInverted
	}
	account := strings.TrimSpace(m.Account)
	if account == "" {
		account = m.Name
	}
	return rowSpec{
		cols: columns{
			date:      m.DateCol,
			desc:      m.DescCol,
			amount:    optCol(m.AmountCol),
			debit:     optCol(m.DebitCol),
			credit:    optCol(m.CreditCol),
			category:  optCol(m.CategoryCol),
			account:   -1,
			reference: optCol(m.ReferenceCol),
			descJoin:  m.DescJoin,
		},
		dateLayouts: layouts,
		sign:        sign,
		strip:       m.AmountStrip,
		account:     account,
	}
}

func optCol(p *int) int {
	if p == nil || *p < 0 {
		return -1
	}
	return *p
}

// Get looks a mapping up by name, case-insensitively.
func (s *MappingSet) Get(name string) (Mapping, bool) {
	for _, m := range s.list {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return Mapping{}, false
}

// Names returns the mapping names sorted.
func (s *MappingSet) Names() []string {
	out := make([]string, len(s.list))
	for i, m := range s.list {
		out[i] = m.Name
	}
	sort.Strings(out)
	return out
}

// detect is the generic delimited fallback. It only claims a file whose header
// matches a mapping's declared header; anything else stays unknown.
func (s *MappingSet) detect(doc *Document) (Match, bool) {
	for _, m := range s.list {
		if len(m.Header) == 0 {
			continue
		}
		for _, rec := range leadingRecords(doc, m.comma(), headerSearchDepth) {
			if headerMatches(rec, m.Header) {
				return Match{Format: statement.FormatCustom, Mapping: m.Name, specificity: specificityGeneric}, true
			}
		}
	}
	return Match{}, false
}

func (s *MappingSet) parse(doc *Document, match Match) (statement.Parsed, error) {
	m, ok := s.Get(match.Mapping)
	if !ok {
		return statement.Parsed{}, &statement.FileStructureError{
			Filename: doc.Filename,
			Reason:   fmt.Sprintf("no column mapping named %q", match.Mapping),
		}
	}
	if doc.hasNUL() {
		return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "binary content in delimited file"}
	}
	r := newCSVReader(doc.Text, m.comma())
	switch {
	case len(m.Header) > 0:
		if _, ok := findHeader(r, m.Header); !ok {
			return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "header row not found"}
		}
	case m.HasHeader:
		if _, err := r.Read(); err != nil {
			return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "header row not found", Err: err}
		}
	}
	return readRows(r, m.spec()), nil
}
