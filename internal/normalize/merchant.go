package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// merchantRules run in order; each strips one kind of processor boilerplate.
var merchantRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(purchase authorized on \d{1,2}/\d{1,2}\s+)`),
	regexp.MustCompile(`(?i)^(debit card purchase\s*-?\s*|checkcard \d{4}\s+|pos (purchase\s+)?|recurring payment\s+)`),
	regexp.MustCompile(`(?i)^(sq\s?\*|tst\*\s?|paypal\s?\*|pp\*|sp\s?\*)`),
	regexp.MustCompile(`(?i)\s+(ref|trace|conf|auth)\b\s*[#:]?\s*\S+$`),
	regexp.MustCompile(`\*\S*$`),
	regexp.MustCompile(`\s*#\s*\d+`),
	regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
	regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(/\d{2,4})?\b`),
}

var statesSuffix = regexp.MustCompile(`^(.+\S\s+\S+)\s+[A-Z]{2}$`)

// CleanMerchant extracts a display merchant from a raw description. It never
// fails; when nothing useful is left the trimmed input is returned.
func CleanMerchant(raw string) string {
	trimmed := strings.TrimSpace(raw)
	s := trimmed
	for _, re := range merchantRules {
		s = strings.TrimSpace(re.ReplaceAllString(s, ""))
	}
	s = cutAtReference(s)
	if m := statesSuffix.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -*#,.")
	if s == "" {
		return trimmed
	}
	return s
}

// cutAtReference drops everything from the first mostly-numeric token onward,
// never the first token.
func cutAtReference(s string) string {
	fields := strings.Fields(s)
	for i := 1; i < len(fields); i++ {
		if numericToken(fields[i]) {
			return strings.Join(fields[:i], " ")
		}
	}
	return s
}

func numericToken(tok string) bool {
	digits, total := 0, 0
	for _, r := range tok {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 3 && digits*2 >= total
}
