// Package testdata generates deterministic bank statements for tests.
package testdata

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var merchants = []string{"UBER EATS* SUSHI", "AMAZON.COM*XYZ", "WHOLEFDS MKT", "SPOTIFY", "SHELL OIL", "SALARY ACME"}

// Row is one generated statement line.
type Row struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Rows returns n rows starting at start, zero to two days apart. The same
// seed always yields the same rows, and every row is distinct.
func Rows(seed uint64, start time.Time, n int) []Row {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Row, 0, n)
	day := start.UTC().Truncate(24 * time.Hour)
	for i := 0; i < n; i++ {
		day = day.AddDate(0, 0, r.IntN(3))
		merchant := merchants[r.IntN(len(merchants))]
		cents := int64(r.IntN(20000) + 100)
		amount := decimal.New(-cents, -2)
		if merchant == "SALARY ACME" {
			amount = decimal.New(cents*10, -2)
		}
		out = append(out, Row{
			Date:        day,
			Description: fmt.Sprintf("%s %04d", merchant, i),
			Amount:      amount,
		})
	}
	return out
}

// BankOfAmerica renders rows in the Bank of America checking layout, with
// the summary block and running balance the bank exports.
func BankOfAmerica(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	balance := decimal.NewFromInt(5000)
	_ = w.Write([]string{"Description", "", "Summary Amt."})
	_ = w.Write([]string{"Beginning balance", "", balance.StringFixed(2)})
	buf.WriteString("\n")
	_ = w.Write([]string{"Date", "Description", "Amount", "Running Bal."})
	for _, r := range rows {
		balance = balance.Add(r.Amount)
		_ = w.Write([]string{r.Date.Format("01/02/2006"), r.Description, r.Amount.StringFixed(2), balance.StringFixed(2)})
	}
	w.Flush()
	return buf.Bytes()
}

// ChaseCredit renders rows in the Chase credit card layout.
func ChaseCredit(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Transaction Date", "Post Date", "Description", "Category", "Type", "Amount", "Memo"})
	for _, r := range rows {
		kind := "Sale"
		if r.Amount.IsPositive() {
			kind = "Payment"
		}
		_ = w.Write([]string{
			r.Date.Format("01/02/2006"),
			r.Date.AddDate(0, 0, 1).Format("01/02/2006"),
			r.Description, "", kind, r.Amount.StringFixed(2), "",
		})
	}
	w.Flush()
	return buf.Bytes()
}
