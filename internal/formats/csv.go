package formats

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

// headerSearchDepth is how many leading records may precede a header row
// (bank summary blocks).
const headerSearchDepth = 20

var errSkipRow = errors.New("non-data row")

// layout is a known bank or card export, identified by its exact header row.
type layout struct {
	format statement.Format
	header []string
	// account labels files whose rows carry no account column
	account string
	// accountPrefix is prepended to the value of the account column
	accountPrefix string
	sign          normalize.SignConvention

	date, description, amount, debit, credit, category, accountCol, reference string
}

var layouts = []layout{
	{
		format:      statement.FormatBankOfAmerica,
		header:      []string{"Date", "Description", "Amount", "Running Bal."},
		account:     "Bank of America",
		date:        "Date",
		description: "Description",
		amount:      "Amount",
	},
	{
		format:      statement.FormatChaseChecking,
		header:      []string{"Details", "Posting Date", "Description", "Amount", "Type", "Balance", "Check or Slip #"},
		account:     "Chase Checking",
		date:        "Posting Date",
		description: "Description",
		amount:      "Amount",
		reference:   "Check or Slip #",
	},
	{
		format:      statement.FormatChaseCredit,
		header:      []string{"Transaction Date", "Post Date", "Description", "Category", "Type", "Amount", "Memo"},
		account:     "Chase Credit Card",
		date:        "Transaction Date",
		description: "Description",
		amount:      "Amount",
		category:    "Category",
	},
	{
		// charges are exported as positive numbers
		format:        statement.FormatAmex,
		header:        []string{"Date", "Description", "Card Member", "Account #", "Amount"},
		account:       "American Express",
		accountPrefix: "American Express",
		sign:          normalize.SignInverted,
		date:          "Date",
		description:   "Description",
		amount:        "Amount",
		accountCol:    "Account #",
	},
	{
		format:        statement.FormatCapitalOne,
		header:        []string{"Transaction Date", "Posted Date", "Card No.", "Description", "Category", "Debit", "Credit"},
		account:       "Capital One",
		accountPrefix: "Capital One",
		date:          "Transaction Date",
		description:   "Description",
		debit:         "Debit",
		credit:        "Credit",
		category:      "Category",
		accountCol:    "Card No.",
	},
}

func (l layout) detect(doc *Document) (Match, bool) {
	for _, rec := range leadingRecords(doc, ',', headerSearchDepth) {
		if headerMatches(rec, l.header) {
			return Match{Format: l.format, specificity: specificityLayout}, true
		}
	}
	return Match{}, false
}

func (l layout) parse(doc *Document, _ Match) (statement.Parsed, error) {
	if doc.hasNUL() {
		return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "binary content in delimited file"}
	}
	r := newCSVReader(doc.Text, ',')
	header, ok := findHeader(r, l.header)
	if !ok {
		return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "header row not found"}
	}
	idx := indexHeader(header)
	spec := rowSpec{
		cols: columns{
			date:      idx.of(l.date),
			desc:      idx.of(l.description),
			amount:    idx.of(l.amount),
			debit:     idx.of(l.debit),
			credit:    idx.of(l.credit),
			category:  idx.of(l.category),
			account:   idx.of(l.accountCol),
			reference: idx.of(l.reference),
		},
		dateLayouts:   normalize.DefaultDateLayouts,
		sign:          l.sign,
		account:       l.account,
		accountPrefix: l.accountPrefix,
	}
	return readRows(r, spec), nil
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := headerIndex{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (h headerIndex) of(name string) int {
	if name == "" {
		return -1
	}
	if i, ok := h[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// columns holds zero-based positions; -1 means absent.
type columns struct {
	date, desc, amount, debit, credit, category, account, reference int
	descJoin                                                        bool
}

// rowSpec turns one record into a draft.
type rowSpec struct {
	cols          columns
	dateLayouts   []string
	sign          normalize.SignConvention
	strip         string
	account       string
	accountPrefix string
}

func (s rowSpec) draft(rec []string, line int) (statement.Draft, error) {
	if isBlankCSVRecord(rec) || summaryRow(rec) {
		return statement.Draft{}, errSkipRow
	}
	cell := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := normalize.ParseDate(cell(s.cols.date), s.dateLayouts)
	if err != nil {
		return statement.Draft{}, err
	}
	amount, err := s.amount(cell)
	if err != nil {
		return statement.Draft{}, err
	}
	desc := extractDescription(rec, s.cols.desc, s.cols.descJoin)
	if desc == "" {
		return statement.Draft{}, errors.New("missing description")
	}

	account := s.account
	if v := cell(s.cols.account); v != "" {
		account = strings.TrimSpace(s.accountPrefix + " " + v)
	}
	return statement.Draft{
		OccurredOn:      date,
		Amount:          amount,
		RawDescription:  desc,
		Merchant:        normalize.CleanMerchant(desc),
		AccountLabel:    account,
		SourceReference: cell(s.cols.reference),
		Category:        Bucket(cell(s.cols.category)),
		Line:            line,
	}, nil
}

func (s rowSpec) amount(cell func(int) string) (decimal.Decimal, error) {
	if s.cols.amount >= 0 {
		raw := cell(s.cols.amount)
		if raw == "" {
			return decimal.Decimal{}, errors.New("missing amount")
		}
		return normalize.ParseAmount(normalize.StripChars(raw, s.strip), s.sign)
	}
	debitRaw := normalize.StripChars(cell(s.cols.debit), s.strip)
	creditRaw := normalize.StripChars(cell(s.cols.credit), s.strip)
	if debitRaw == "" && creditRaw == "" {
		return decimal.Decimal{}, errors.New("missing amount")
	}
	var total decimal.Decimal
	if debitRaw != "" {
		v, err := normalize.ParseAmount(debitRaw, normalize.SignAsIs)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Sub(v.Abs())
	}
	if creditRaw != "" {
		v, err := normalize.ParseAmount(creditRaw, normalize.SignAsIs)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(v.Abs())
	}
	if s.sign == normalize.SignInverted {
		total = total.Neg()
	}
	return total, nil
}

// readRows consumes the remaining records. Bad rows are recorded and skipped.
func readRows(r *csv.Reader, spec rowSpec) statement.Parsed {
	var out statement.Parsed
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				out.Errors = append(out.Errors, statement.RowError{Line: perr.StartLine, Reason: perr.Err.Error()})
				continue
			}
			break
		}
		line, _ := r.FieldPos(0)
		d, err := spec.draft(rec, line)
		if errors.Is(err, errSkipRow) {
			continue
		}
		if err != nil {
			out.Errors = append(out.Errors, statement.RowError{Line: line, Reason: err.Error()})
			continue
		}
		out.Drafts = append(out.Drafts, d)
	}
	return out
}

func newCSVReader(text string, comma rune) *csv.Reader {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	return r
}

// findHeader advances r past the header row.
func findHeader(r *csv.Reader, header []string) ([]string, bool) {
	for i := 0; i < headerSearchDepth; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, false
		}
		if err != nil {
			continue
		}
		if headerMatches(rec, header) {
			return rec, true
		}
	}
	return nil, false
}

func leadingRecords(doc *Document, comma rune, n int) [][]string {
	r := newCSVReader(doc.head(64<<10), comma)
	var out [][]string
	for len(out) < n {
		rec, err := r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			break
		}
		out = append(out, rec)
	}
	return out
}

// trimRecord trims cells and drops trailing empty ones.
func trimRecord(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func headerMatches(rec, header []string) bool {
	got := trimRecord(rec)
	if len(got) != len(header) {
		return false
	}
	for i := range header {
		if !strings.EqualFold(got[i], header[i]) {
			return false
		}
	}
	return true
}

var summaryMarkers = []string{"beginning balance", "ending balance", "opening balance", "closing balance"}

// summaryRow reports bank balance lines that sit among the data rows.
func summaryRow(rec []string) bool {
	if len(rec) > 0 {
		first := strings.ToLower(strings.TrimSpace(rec[0]))
		if first == "total" || first == "totals" {
			return true
		}
	}
	for _, v := range rec {
		low := strings.ToLower(v)
		for _, m := range summaryMarkers {
			if strings.Contains(low, m) {
				return true
			}
		}
	}
	return false
}

func extractDescription(rec []string, descCol int, join bool) string {
	if descCol < 0 || descCol >= len(rec) {
		return ""
	}
	if !join {
		return strings.TrimSpace(rec[descCol])
	}
	parts := make([]string, 0, len(rec)-descCol)
	for _, cell := range rec[descCol:] {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			parts = append(parts, cell)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func isBlankCSVRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
