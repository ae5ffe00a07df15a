package formats

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/jask/moneyimport/internal/normalize"
	"github.com/jask/moneyimport/internal/statement"
)

// ofxSniffBytes bounds how far into a file the OFX markers are looked for.
const ofxSniffBytes = 4096

func detectOFX(doc *Document) (Match, bool) {
	head := strings.ToUpper(doc.head(ofxSniffBytes))
	if strings.Contains(head, "OFXHEADER") || strings.Contains(head, "<OFX>") {
		return Match{Format: statement.FormatOFX, specificity: specificityEnvelope}, true
	}
	return Match{}, false
}

// parseOFX reads bank and credit card statements. Drafts carry the FITID in
// SourceReference; Line is the record's ordinal within the file.
func parseOFX(doc *Document, _ Match) (statement.Parsed, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(doc.Raw))
	if err != nil {
		return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "invalid OFX document", Err: err}
	}
	var out statement.Parsed
	ordinal := 0
	add := func(account string, list *ofxgo.TransactionList) {
		if list == nil {
			return
		}
		for i := range list.Transactions {
			ordinal++
			d, err := ofxDraft(&list.Transactions[i], account, ordinal)
			if err != nil {
				out.Errors = append(out.Errors, statement.RowError{Line: ordinal, Reason: err.Error()})
				continue
			}
			out.Drafts = append(out.Drafts, d)
		}
	}

	statements := 0
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			statements++
			add(stmt.BankAcctFrom.AcctID.String(), stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			statements++
			add(stmt.CCAcctFrom.AcctID.String(), stmt.BankTranList)
		}
	}
	if statements == 0 {
		return statement.Parsed{}, &statement.FileStructureError{Filename: doc.Filename, Reason: "no bank or credit card statement"}
	}
	return out, nil
}

func ofxDraft(txn *ofxgo.Transaction, account string, ordinal int) (statement.Draft, error) {
	posted := txn.DtPosted.Time
	if posted.IsZero() {
		return statement.Draft{}, errors.New("missing posting date")
	}
	amount, err := decimal.NewFromString(txn.TrnAmt.FloatString(2))
	if err != nil {
		return statement.Draft{}, fmt.Errorf("invalid amount: %w", err)
	}
	desc := strings.TrimSpace(txn.Name.String())
	if desc == "" {
		desc = strings.TrimSpace(txn.Memo.String())
	}
	if desc == "" {
		return statement.Draft{}, errors.New("missing name and memo")
	}
	account = strings.TrimSpace(account)
	if account == "" {
		account = "OFX"
	}
	return statement.Draft{
		OccurredOn:      time.Date(posted.Year(), posted.Month(), posted.Day(), 0, 0, 0, 0, time.UTC),
		Amount:          amount,
		RawDescription:  desc,
		Merchant:        normalize.CleanMerchant(desc),
		AccountLabel:    account,
		SourceReference: strings.TrimSpace(txn.FiTID.String()),
		Line:            ordinal,
	}, nil
}
