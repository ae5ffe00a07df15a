package normalize

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// SignConvention says how a source encodes direction.
type SignConvention int

const (
	// SignAsIs means the source already uses inflow-positive amounts.
	SignAsIs SignConvention = iota
	// SignInverted means the source reports charges as positive numbers.
	SignInverted
)

// longest first so "A$" is not reduced to "A" by "$"
var currencySymbols = []string{"US$", "A$", "C$", "$", "€", "£", "¥", "₹"}

// ParseAmount strips currency decorations and thousands separators, honours
// parenthesised, trailing-minus and CR/DR notations, then applies conv.
func ParseAmount(raw string, conv SignConvention) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &FormatError{Field: "amount", Value: raw, Err: errors.New("empty")}
	}
	neg := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		neg = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = !neg
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		neg = !neg
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	s = stripCurrencyCode(s)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = strings.TrimPrefix(s, "-")
		// "-$4.50" leaves the symbol behind the sign
		for _, sym := range currencySymbols {
			s = strings.TrimPrefix(s, sym)
		}
	}
	if s == "" {
		return decimal.Zero, &FormatError{Field: "amount", Value: raw, Err: errors.New("no digits")}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &FormatError{Field: "amount", Value: raw, Err: err}
	}
	if neg {
		d = d.Neg()
	}
	if conv == SignInverted {
		d = d.Neg()
	}
	return d, nil
}

// StripChars removes every rune of chars from raw.
func StripChars(raw, chars string) string {
	for _, ch := range chars {
		raw = strings.ReplaceAll(raw, string(ch), "")
	}
	return raw
}

// stripCurrencyCode drops a leading or trailing ISO code such as "USD".
func stripCurrencyCode(s string) string {
	if len(s) > 3 && isCode(s[:3]) {
		return strings.TrimSpace(s[3:])
	}
	if len(s) > 3 && isCode(s[len(s)-3:]) {
		return strings.TrimSpace(s[:len(s)-3])
	}
	return s
}

func isCode(s string) bool {
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
