package warehouse

import (
	"strings"
	"text/template"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote renders s as a single-quoted BigQuery string literal.
func Quote(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

// QuoteList renders values as a comma separated list of string literals, as
// used inside IN (...) and PIVOT ... FOR x in (...).
func QuoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, Quote(v))
	}
	return strings.Join(quoted, ", ")
}

// TemplateFuncs is shared by every query template so literals are always
// escaped the same way.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"quote":     Quote,
		"quoteList": QuoteList,
		"upper":     strings.ToUpper,
	}
}
