package formats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

const qifDefaultAccount = "QIF"

// ledger sections whose records are transactions
var qifLedgers = map[string]bool{
	"bank":  true,
	"cash":  true,
	"ccard": true,
	"oth a": true,
	"oth l": true,
}

func detectQIF(doc *Document) (Match, bool) {
	for _, line := range strings.Split(doc.head(4096), "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!type:") || strings.HasPrefix(line, "!account") || strings.HasPrefix(line, "!option") {
			return Match{Format: statement.FormatQIF, specificity: specificityEnvelope}, true
		}
		return Match{}, false
	}
	return Match{}, false
}

type qifRecord struct {
	line   int
	fields map[byte]string
}

// parseQIF walks the file line by line. "!Account" blocks switch the account
// label for every following record until the next account block.
func parseQIF(doc *Document, _ Match) (statement.Parsed, error) {
	var (
		out       statement.Parsed
		section   string
		inAccount bool
		account   = qifDefaultAccount
		cur       *qifRecord
		sawHeader bool
	)

	flush := func() {
		if cur == nil {
			return
		}
		rec := cur
		cur = nil
		if inAccount {
			if name := rec.fields['N']; name != "" {
				account = name
			}
			return
		}
		switch {
		case qifLedgers[section]:
			d, err := qifDraft(rec, account)
			if err != nil {
				out.Errors = append(out.Errors, statement.RowError{Line: rec.line, Reason: err.Error()})
				return
			}
			out.Drafts = append(out.Drafts, d)
		case strings.HasPrefix(section, "invst"):
			out.Errors = append(out.Errors, statement.RowError{Line: rec.line, Reason: "investment records are not supported"})
		}
	}

	for i, raw := range strings.Split(doc.Text, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line[0] == '!' {
			flush()
			low := strings.ToLower(line)
			switch {
			case strings.HasPrefix(low, "!account"):
				inAccount = true
				sawHeader = true
			case strings.HasPrefix(low, "!type:"):
				section = strings.TrimSpace(low[len("!type:"):])
				inAccount = false
				sawHeader = true
			}
			continue
		}
		if !sawHeader {
			return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: fmt.Sprintf("line %d: record before any !Type header", lineNo)}
		}
		if line == "^" {
			flush()
			continue
		}
		if cur == nil {
			cur = &qifRecord{line: lineNo, fields: map[byte]string{}}
		}
		code := line[0]
		if _, dup := cur.fields[code]; !dup {
			cur.fields[code] = strings.TrimSpace(line[1:])
		}
	}
	flush()
	return out, nil
}

func qifDraft(rec *qifRecord, account string) (statement.Draft, error) {
	rawDate, ok := rec.fields['D']
	if !ok || rawDate == "" {
		return statement.Draft{}, errors.New("missing date")
	}
	date, err := normalize.ParseDate(qifDate(rawDate), normalize.DefaultDateLayouts)
	if err != nil {
		return statement.Draft{}, err
	}
	rawAmount := rec.fields['T']
	if rawAmount == "" {
		rawAmount = rec.fields['U']
	}
	if rawAmount == "" {
		return statement.Draft{}, errors.New("missing amount")
	}
	amount, err := normalize.ParseAmount(rawAmount, normalize.SignAsIs)
	if err != nil {
		return statement.Draft{}, err
	}
	desc := rec.fields['P']
	if desc == "" {
		desc = rec.fields['M']
	}
	if desc == "" {
		return statement.Draft{}, errors.New("missing payee")
	}
	category := rec.fields['L']
	if strings.HasPrefix(category, "[") {
		// transfer to another account
		category = ""
	}
	return statement.Draft{
		OccurredOn:      date,
		Amount:          amount,
		RawDescription:  desc,
		Merchant:        normalize.CleanMerchant(desc),
		AccountLabel:    account,
		SourceReference: rec.fields['N'],
		Category:        Bucket(category),
		Line:            rec.line,
	}, nil
}

// qifDate rewrites Quicken's 1/ 5'24 style into 1/5/24.
func qifDate(raw string) string {
	raw = strings.ReplaceAll(raw, "'", "/")
	return strings.ReplaceAll(raw, " ", "")
}
