package suggest

import "strings"

// stopwords are connectors and generic transaction words that carry no
// categorization signal.
var stopwords = map[string]bool{
	"about": true, "card": true, "cash": true, "charge": true, "credit": true,
	"debit": true, "from": true, "inc": true, "llc": true, "online": true,
	"payment": true, "pending": true, "point": true, "purchase": true,
	"recurring": true, "sale": true, "store": true, "that": true, "the": true,
	"this": true, "transaction": true, "transfer": true, "with": true,
	"withdrawal": true,
}

// SignificantTokens lowercases, splits on whitespace, and drops short or
// stopword tokens.
func SignificantTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,#*-:;()")
		if len(f) <= 3 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
