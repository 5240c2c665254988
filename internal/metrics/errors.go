package metrics

import (
	"strings"
	"unicode"
)

// knownErrors labels the error types a load run usually produces. Keys are
// %T names without the leading '*'.
var knownErrors = map[string]string{
	"workload.HTTPError":            "HTTP error response",
	"workload.ExpectationError":     "Response expectation failed",
	"engine.PanicError":             "Recovered panic",
	"url.Error":                     "Request URL error",
	"net.OpError":                   "Network error",
	"context.deadlineExceededError": "Context deadline exceeded",
	"errors.errorString":            "Error",
	"fmt.wrapError":                 "Wrapped error",
	"fmt.wrapErrors":                "Wrapped error",
}

// FriendlyErrorName turns a %T error type name, as kept by the Collector,
// into a label for reports. Unknown types are split at case changes and
// suffixed with their package: "*pkg.TimeoutErr" becomes "Timeout Err (pkg)".
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if label, ok := knownErrors[name]; ok {
		return label
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	label := splitWords(typ)
	if pkg == "" || pkg == "main" {
		return label
	}
	return label + " (" + pkg + ")"
}

// splitWords breaks an identifier into capitalized words, keeping acronyms
// such as "HTTP" or "EOF" intact.
func splitWords(ident string) string {
	runes := []rune(ident)
	var words [][]rune
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		boundary := unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower))
		if boundary || (unicode.IsDigit(cur) && !unicode.IsDigit(prev)) {
			words = append(words, runes[start:i])
			start = i
		}
	}
	words = append(words, runes[start:])

	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) == 0 {
			continue
		}
		if isAcronym(w) {
			out = append(out, string(w))
			continue
		}
		lower := []rune(strings.ToLower(string(w)))
		lower[0] = unicode.ToUpper(lower[0])
		out = append(out, string(lower))
	}
	return strings.Join(out, " ")
}

func isAcronym(word []rune) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}
