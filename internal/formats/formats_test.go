package formats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/moneyimport/internal/statement"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	mappings, err := LoadMappings(filepath.Join("testdata", "mappings.toml"))
	require.NoError(t, err)
	return NewRegistry(mappings)
}

func TestDetectKnownFormats(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	cases := map[string]statement.Format{
		"bofa.csv":           statement.FormatBankOfAmerica,
		"chase_checking.csv": statement.FormatChaseChecking,
		"chase_credit.csv":   statement.FormatChaseCredit,
		"amex.csv":           statement.FormatAmex,
		"capital_one.csv":    statement.FormatCapitalOne,
		"accounts.qif":       statement.FormatQIF,
		"checking.ofx":       statement.FormatOFX,
		"credit_union.csv":   statement.FormatCustom,
		"unknown.csv":        statement.FormatUnknown,
		"anz.csv":            statement.FormatUnknown,
	}
	for name, want := range cases {
		doc, err := NewDocument(name, fixture(t, name))
		require.NoError(t, err)
		assert.Equal(t, want, reg.Detect(doc).Format, name)
	}
}

func TestUnknownFormatIsNeverParsed(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	det, parsed, err := reg.Run("unknown.csv", fixture(t, "unknown.csv"), Options{})
	require.ErrorIs(t, err, statement.ErrFormatUndetected)
	assert.Equal(t, statement.FormatUnknown, det.Format)
	assert.Equal(t, string(statement.FormatBankOfAmerica), det.Hint)
	assert.Empty(t, parsed.Drafts)
}

func TestBankOfAmericaExample(t *testing.T) {
	t.Parallel()
	det, parsed, err := testRegistry(t).Run("bofa.csv", fixture(t, "bofa.csv"), Options{})
	require.NoError(t, err)
	assert.Equal(t, statement.FormatBankOfAmerica, det.Format)
	require.Empty(t, parsed.Errors)
	require.Len(t, parsed.Drafts, 1)

	d := parsed.Drafts[0]
	assert.Equal(t, "2024-01-05", d.Date())
	assert.Equal(t, "-4.50", d.Amount.StringFixed(2))
	assert.Equal(t, "COFFEE SHOP 123", d.RawDescription)
	assert.Equal(t, "COFFEE SHOP", d.Merchant)
	assert.Equal(t, "Bank of America", d.AccountLabel)
	assert.Equal(t, statement.FormatBankOfAmerica, d.OriginFormat)
}

func TestChaseChecking(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("chase_checking.csv", fixture(t, "chase_checking.csv"), Options{})
	require.NoError(t, err)
	require.Len(t, parsed.Drafts, 3)
	require.Len(t, parsed.Errors, 1)
	assert.Equal(t, 5, parsed.Errors[0].Line)

	assert.Equal(t, "JOES DINER", parsed.Drafts[0].Merchant)
	assert.Equal(t, "2500.00", parsed.Drafts[1].Amount.StringFixed(2))
	assert.Equal(t, "1042", parsed.Drafts[2].SourceReference)
	assert.Equal(t, "Chase Checking", parsed.Drafts[2].AccountLabel)
}

func TestChaseCreditCategories(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("chase_credit.csv", fixture(t, "chase_credit.csv"), Options{})
	require.NoError(t, err)
	require.Len(t, parsed.Drafts, 3)
	assert.Equal(t, "Groceries", parsed.Drafts[0].Category)
	assert.Equal(t, "Restaurants", parsed.Drafts[1].Category)
	assert.Equal(t, "BLUE BOTTLE COFFEE", parsed.Drafts[1].Merchant)
	assert.Empty(t, parsed.Drafts[2].Category)
	assert.True(t, parsed.Drafts[2].Amount.IsPositive())
}

func TestAmexSignFlip(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("amex.csv", fixture(t, "amex.csv"), Options{})
	require.NoError(t, err)
	require.Len(t, parsed.Drafts, 2)
	assert.Equal(t, "-42.99", parsed.Drafts[0].Amount.StringFixed(2))
	assert.Equal(t, "200.00", parsed.Drafts[1].Amount.StringFixed(2))
	assert.Equal(t, "American Express -41005", parsed.Drafts[0].AccountLabel)
	assert.Equal(t, "AMAZON.COM", parsed.Drafts[0].Merchant)
}

func TestCapitalOneDebitCredit(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("capital_one.csv", fixture(t, "capital_one.csv"), Options{})
	require.NoError(t, err)
	require.Len(t, parsed.Drafts, 2)
	require.Len(t, parsed.Errors, 1)
	assert.Equal(t, 4, parsed.Errors[0].Line)
	assert.Equal(t, "missing amount", parsed.Errors[0].Reason)

	assert.Equal(t, "-45.10", parsed.Drafts[0].Amount.StringFixed(2))
	assert.Equal(t, "Transport", parsed.Drafts[0].Category)
	assert.Equal(t, "Capital One 7788", parsed.Drafts[0].AccountLabel)
	assert.Equal(t, "120.00", parsed.Drafts[1].Amount.StringFixed(2))
}

func TestQIFAccountSections(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("accounts.qif", fixture(t, "accounts.qif"), Options{})
	require.NoError(t, err)
	require.Len(t, parsed.Drafts, 3)
	require.Len(t, parsed.Errors, 1)
	assert.Equal(t, 27, parsed.Errors[0].Line)

	first := parsed.Drafts[0]
	assert.Equal(t, "2024-01-05", first.Date())
	assert.Equal(t, "Everyday Checking", first.AccountLabel)
	assert.Equal(t, "Restaurants", first.Category)

	assert.Equal(t, "1001", parsed.Drafts[1].SourceReference)
	assert.Equal(t, "Income", parsed.Drafts[1].Category)
	assert.Equal(t, "1250.00", parsed.Drafts[1].Amount.StringFixed(2))

	assert.Equal(t, "Rewards Card", parsed.Drafts[2].AccountLabel)
	assert.Equal(t, 22, parsed.Drafts[2].Line)
}

func TestQIFRecordBeforeHeader(t *testing.T) {
	t.Parallel()
	doc, err := NewDocument("bad.qif", []byte("!Option:AutoSwitch\nD01/01/2024\n^\n"))
	require.NoError(t, err)
	_, err = parseQIF(doc, Match{})
	var fse *statement.FileStructureError
	require.ErrorAs(t, err, &fse)
}

func TestOFXSameIdentifierKeepsReference(t *testing.T) {
	t.Parallel()
	det, parsed, err := testRegistry(t).Run("checking.ofx", fixture(t, "checking.ofx"), Options{})
	require.NoError(t, err)
	assert.Equal(t, statement.FormatOFX, det.Format)
	require.Empty(t, parsed.Errors)
	require.Len(t, parsed.Drafts, 3)

	a, b := parsed.Drafts[0], parsed.Drafts[1]
	assert.Equal(t, "FIT-0001", a.SourceReference)
	assert.Equal(t, a.SourceReference, b.SourceReference)
	assert.NotEqual(t, a.RawDescription, b.RawDescription)
	assert.Equal(t, "9876543", a.AccountLabel)
	assert.Equal(t, "2024-01-05", a.Date())
	assert.Equal(t, "-20.00", a.Amount.StringFixed(2))
	assert.Equal(t, "1500.00", parsed.Drafts[2].Amount.StringFixed(2))
}

func TestOFXBrokenDocument(t *testing.T) {
	t.Parallel()
	_, _, err := testRegistry(t).Run("broken.ofx", []byte("OFXHEADER:100\r\n<OFX><nonsense"), Options{})
	var fse *statement.FileStructureError
	require.ErrorAs(t, err, &fse)
	assert.Equal(t, "broken.ofx", fse.Filename)
}

func TestCustomMappingDetected(t *testing.T) {
	t.Parallel()
	det, parsed, err := testRegistry(t).Run("credit_union.csv", fixture(t, "credit_union.csv"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Credit Union", det.Mapping)
	require.Len(t, parsed.Drafts, 2)
	assert.Equal(t, "-35.00", parsed.Drafts[0].Amount.StringFixed(2))
	assert.Equal(t, "2024-01-05", parsed.Drafts[0].Date())
	assert.Equal(t, "Credit Union Share", parsed.Drafts[0].AccountLabel)
	assert.Equal(t, statement.FormatCustom, parsed.Drafts[0].OriginFormat)
}

func TestCustomMappingRetry(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	_, _, err := reg.Run("anz.csv", fixture(t, "anz.csv"), Options{})
	require.ErrorIs(t, err, statement.ErrFormatUndetected)

	det, parsed, err := reg.Run("anz.csv", fixture(t, "anz.csv"), Options{Mapping: "anz"})
	require.NoError(t, err)
	assert.Equal(t, statement.FormatCustom, det.Format)
	require.Len(t, parsed.Drafts, 2)
	assert.Equal(t, "2026-02-03", parsed.Drafts[0].Date())
	assert.Equal(t, "-1020.00", parsed.Drafts[1].Amount.StringFixed(2))
	assert.Equal(t, "DAN MURPHY'S/580 MELBOURN SPOTSWOOD", parsed.Drafts[1].RawDescription)
	assert.Equal(t, "ANZ", parsed.Drafts[1].AccountLabel)

	_, _, err = reg.Run("anz.csv", fixture(t, "anz.csv"), Options{Mapping: "nope"})
	var fse *statement.FileStructureError
	require.ErrorAs(t, err, &fse)
}

func TestAccountOverride(t *testing.T) {
	t.Parallel()
	_, parsed, err := testRegistry(t).Run("accounts.qif", fixture(t, "accounts.qif"), Options{AccountLabel: "Joint"})
	require.NoError(t, err)
	for _, d := range parsed.Drafts {
		assert.Equal(t, "Joint", d.AccountLabel)
	}
}

func TestParseMappingsValidation(t *testing.T) {
	t.Parallel()
	_, err := ParseMappings(`[[mapping]]
name = "x"
date_col = 0
desc_col = 1`)
	require.Error(t, err)

	_, err = ParseMappings(`[[mapping]]
name = "x"
amount_col = 1
[[mapping]]
name = "X"
amount_col = 1`)
	require.ErrorContains(t, err, "duplicate")

	set, err := LoadMappings(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Empty(t, set.Names())
}

func TestDecoding(t *testing.T) {
	t.Parallel()
	bom := append([]byte{0xEF, 0xBB, 0xBF}, fixture(t, "bofa.csv")...)
	det, parsed, err := testRegistry(t).Run("bom.csv", bom, Options{})
	require.NoError(t, err)
	assert.Equal(t, statement.FormatBankOfAmerica, det.Format)
	assert.Len(t, parsed.Drafts, 1)

	// 0xE9 is é in Windows-1252
	doc, err := NewDocument("latin.csv", []byte("Caf\xe9"))
	require.NoError(t, err)
	assert.Equal(t, "Café", doc.Text)

	// UTF-16LE with BOM
	doc, err = NewDocument("wide.csv", []byte{0xFF, 0xFE, 'O', 0, 'K', 0})
	require.NoError(t, err)
	assert.Equal(t, "OK", doc.Text)
}

func TestNULInDelimitedFile(t *testing.T) {
	t.Parallel()
	raw := append([]byte("Date,Description,Amount,Running Bal.\n2024-01-05,X"), 0, ',', '1', ',', '2', '\n')
	_, _, err := testRegistry(t).Run("nul.csv", raw, Options{})
	var fse *statement.FileStructureError
	require.ErrorAs(t, err, &fse)
}

func TestPanickingDetectorIsNoMatch(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil)
	reg.Register(statement.FormatQIF, func(*Document) (Match, bool) { panic("boom") }, parseQIF)
	doc, err := NewDocument("a.qif", fixture(t, "accounts.qif"))
	require.NoError(t, err)
	assert.Equal(t, statement.FormatUnknown, reg.Detect(doc).Format)
}

func TestPanickingParserIsFileError(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil)
	reg.Register(statement.FormatQIF, detectQIF, func(*Document, Match) (statement.Parsed, error) { panic("boom") })
	_, _, err := reg.Run("a.qif", fixture(t, "accounts.qif"), Options{})
	var fse *statement.FileStructureError
	require.True(t, errors.As(err, &fse))
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "Groceries", Bucket(" GROCERIES "))
	assert.Equal(t, "Restaurants", Bucket("Food:Restaurants"))
	assert.Equal(t, "Transport", Bucket("gas/automotive"))
	assert.Empty(t, Bucket("Payment/Credit"))
	assert.Empty(t, Bucket(""))
}
