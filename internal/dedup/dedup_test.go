package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/moneyimport/internal/fingerprint"
	"github.com/jask/moneyimport/internal/statement"
)

func row(day int, amount, desc, account string) statement.Draft {
	return statement.Draft{
		OccurredOn:     time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:         decimal.RequireFromString(amount),
		RawDescription: desc,
		AccountLabel:   account,
		OriginFormat:   statement.FormatBankOfAmerica,
		Line:           day,
	}
}

func emptyExisting() Existing {
	return Existing{Scoped: map[string]struct{}{}, UnscopedOwners: map[string][]string{}}
}

func TestClassify(t *testing.T) {
	d := row(1, "-4.50", "COFFEE", "Everyday")
	fp := fingerprint.Compute(d)

	assert.Equal(t, New, Classify(fp, emptyExisting(), Seen{}))
	assert.Equal(t, DuplicateInBatch, Classify(fp, emptyExisting(), Seen{fp.Scoped: 0}))

	existing := emptyExisting()
	existing.Scoped[fp.Scoped] = struct{}{}
	// persisted wins over in-batch
	assert.Equal(t, DuplicateExisting, Classify(fp, existing, Seen{fp.Scoped: 0}))
}

func TestResolveCrossFile(t *testing.T) {
	a := []statement.Draft{
		row(1, "-1.00", "A", "Everyday"),
		row(2, "-2.00", "B", "Everyday"),
		row(3, "-3.00", "C", "Everyday"),
	}
	b := []statement.Draft{
		row(2, "-2.00", "B", "Everyday"),
		row(3, "-3.00", "C", "Everyday"),
		row(4, "-4.00", "D", "Everyday"),
		row(4, "-4.00", "D", "Everyday"),
	}

	results, total := Resolve([][]statement.Draft{a, b}, emptyExisting())
	require.Len(t, results, 2)
	assert.Equal(t, 4, total.New)
	assert.Equal(t, 2, total.DuplicateCrossFile)
	assert.Equal(t, 1, total.DuplicateInFile)
	assert.Equal(t, 3, total.DuplicateInBatch())
	assert.Len(t, results[0].Accepted(), 3)
	assert.Len(t, results[1].Accepted(), 1)
	assert.Equal(t, 0, results[1].Outcomes[0].FirstFile)

	// the persisted total does not depend on file order
	_, reversed := Resolve([][]statement.Draft{b, a}, emptyExisting())
	assert.Equal(t, total.New, reversed.New)
	assert.Equal(t, total.DuplicateInBatch(), reversed.DuplicateInBatch())
}

func TestResolveAgainstExisting(t *testing.T) {
	drafts := []statement.Draft{row(1, "-1.00", "A", "Everyday"), row(2, "-2.00", "B", "Everyday")}
	existing := emptyExisting()
	for _, d := range drafts {
		existing.Scoped[fingerprint.Compute(d).Scoped] = struct{}{}
	}
	_, total := Resolve([][]statement.Draft{drafts}, existing)
	assert.Equal(t, 0, total.New)
	assert.Equal(t, 2, total.DuplicateExisting)
}

func TestCrossAccountWarningIsInformational(t *testing.T) {
	d := row(5, "-60.00", "TRANSFER", "Savings")
	existing := emptyExisting()
	existing.UnscopedOwners[fingerprint.Compute(d).Unscoped] = []string{"Everyday"}

	results, total := Resolve([][]statement.Draft{{d}}, existing)
	assert.Equal(t, 1, total.New)
	assert.Equal(t, 1, total.CrossAccount)
	w := results[0].Outcomes[0].Warning
	require.NotNil(t, w)
	assert.Equal(t, "savings", w.Account)
	assert.Equal(t, []string{"everyday"}, w.OtherAccounts)
}

func TestCrossAccountWarningWithinBatch(t *testing.T) {
	first := row(5, "-60.00", "TRANSFER", "Everyday")
	second := row(5, "-60.00", "TRANSFER", "Savings")
	results, total := Resolve([][]statement.Draft{{first}, {second}}, emptyExisting())
	assert.Equal(t, 2, total.New)
	assert.Equal(t, 1, total.CrossAccount)
	assert.Nil(t, results[0].Outcomes[0].Warning)
	assert.NotNil(t, results[1].Outcomes[0].Warning)
}

func TestSameAccountOwnerIsNotAWarning(t *testing.T) {
	d := row(5, "-60.00", "TRANSFER", "Everyday")
	existing := emptyExisting()
	existing.UnscopedOwners[fingerprint.Compute(d).Unscoped] = []string{"EVERYDAY"}
	_, total := Resolve([][]statement.Draft{{d}}, existing)
	assert.Zero(t, total.CrossAccount)
}

func TestResolverSeenIsExplicit(t *testing.T) {
	d := row(1, "-1.00", "A", "Everyday")
	seen := Seen{fingerprint.Compute(d).Scoped: 7}
	r := NewResolver(emptyExisting(), seen)
	res := r.File(8, []statement.Draft{d})
	assert.Equal(t, 1, res.Counts.DuplicateCrossFile)
	assert.Equal(t, 7, res.Outcomes[0].FirstFile)
}
