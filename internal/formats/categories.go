package formats

import "strings"

// Buckets is the category vocabulary issuer labels are mapped into.
var Buckets = []string{
	"Income", "Groceries", "Restaurants", "Transport", "Shopping",
	"Utilities", "Subscriptions", "Savings", "Health", "Entertainment",
}

// issuerCategories maps lower-cased issuer labels to a bucket.
var issuerCategories = map[string]string{
	// Chase
	"food & drink":          "Restaurants",
	"groceries":             "Groceries",
	"gas":                   "Transport",
	"travel":                "Transport",
	"automotive":            "Transport",
	"shopping":              "Shopping",
	"home":                  "Shopping",
	"bills & utilities":     "Utilities",
	"health & wellness":     "Health",
	"entertainment":         "Entertainment",
	"personal":              "Shopping",
	"professional services": "Utilities",

	// Capital One
	"dining":         "Restaurants",
	"grocery":        "Groceries",
	"gas/automotive": "Transport",
	"merchandise":    "Shopping",
	"health care":    "Health",
	"phone/cable":    "Utilities",
	"internet":       "Utilities",
	"airfare":        "Transport",
	"lodging":        "Entertainment",
	"car rental":     "Transport",
	"other travel":   "Transport",

	// QIF / generic
	"salary":        "Income",
	"paycheck":      "Income",
	"interest":      "Income",
	"dividend":      "Income",
	"restaurants":   "Restaurants",
	"auto":          "Transport",
	"transport":     "Transport",
	"utilities":     "Utilities",
	"subscriptions": "Subscriptions",
	"streaming":     "Subscriptions",
	"savings":       "Savings",
	"medical":       "Health",
	"health":        "Health",
	"income":        "Income",
}

// Bucket maps an issuer category label to a bucket. QIF style hierarchical
// labels ("Food:Groceries") are tried leaf first. It returns "" when the label
// is not known.
func Bucket(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return ""
	}
	parts := strings.Split(label, ":")
	for i := len(parts) - 1; i >= 0; i-- {
		if b, ok := issuerCategories[strings.TrimSpace(parts[i])]; ok {
			return b
		}
	}
	return ""
}
