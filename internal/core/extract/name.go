package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const (
	maxNameWords  = 3
	minWordLength = 3
	maxNameLength = 25

	capitalized = `[A-Z][A-Za-z]+`
	nameWords   = `(` + capitalized + `(?:[ \t]+` + capitalized + `){0,2})`
)

// Priority order. The first pattern whose candidate survives validation wins.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)(?i:passenger\s*details).*?\n\s*(` + capitalized + `(?:[ \t]+` + capitalized + `)?)[ \t,]+\d+`),
	regexp.MustCompile(`CustomerName([A-Z][a-z]+(?:[A-Z][a-z]+)?)`),
	regexp.MustCompile(`(?i:customer\s*name)[ \t]*[:\-]?[ \t]*` + nameWords),
	regexp.MustCompile(`(?i:employee\s*name|employee|passenger\s*name|passenger|customer|guest|traveller|traveler)[ \t]*:[ \t]*` + nameWords),
	regexp.MustCompile(`\b(?i:mrs|mr|ms|miss)\.?[ \t]+` + nameWords),
	regexp.MustCompile(`([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)[ \t]*\n?[ \t]*(?i:table)[ \t]*(?i:no\.?)?[ \t]*:`),
}

// Domain nouns that attach to captured names and are stripped before validation.
var nameStopWords = wordSet(
	"invoice", "bill", "receipt", "total", "amount", "date", "number", "address", "phone", "email",
	"details", "age", "gender", "male", "female", "care", "service", "customer", "travels", "booking",
	"reservation", "ticket", "driver", "trip", "ride", "fare", "charges", "tax", "category", "mobile",
	"pickup", "drop", "location", "point", "time", "departure", "arrival", "seat", "operator", "food",
	"restaurant", "hotel", "payment", "mode", "online", "cash", "card", "table", "name", "id",
)

// Tokens that are never a person's name on their own.
var disallowedNames = wordSet(
	"car", "air", "bus", "train", "cab", "auto", "taxi", "food", "meal", "meals", "lunch", "dinner",
	"breakfast", "travel", "allowance", "policy", "reimbursement", "expense", "expenses", "invoice",
	"receipt", "bill", "ticket", "rupees", "rupee", "inr", "rs", "total", "amount", "unknown",
	"employee", "passenger", "customer", "guest", "restaurant", "hotel", "uber", "ola", "rapido",
	"flight", "airlines", "india", "limited", "ltd", "private", "pvt", "company", "sir", "madam",
)

var filenameNoise = wordSet(
	"invoice", "invoices", "bill", "bills", "receipt", "receipts", "book", "booking", "template",
	"scan", "scanned", "copy", "final", "doc", "document", "pdf", "img", "image", "file", "new",
	"ticket", "tax",
)

var (
	camelBoundary  = regexp.MustCompile(`([a-z])([A-Z])`)
	digitsPattern  = regexp.MustCompile(`\d+`)
	filenameSplits = strings.NewReplacer("_", " ", "-", " ", ".", " ", "(", " ", ")", " ")
)

// EmployeeName returns the first validated name candidate, else a filename-derived
// name, else the unknown-employee sentinel. It never returns an empty string.
func EmployeeName(text, filename string) string {
	if name, ok := nameFromText(text); ok {
		return name
	}
	if name, ok := NameFromFilename(filename); ok {
		return name
	}
	return domain.UnknownEmployee
}

func nameFromText(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, re := range namePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if name, ok := acceptName(m[1]); ok {
				return name, true
			}
		}
	}
	return "", false
}

// NameFromFilename derives a name from a filename such as "ramesh_kumar_invoice_12.pdf".
func NameFromFilename(filename string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "" {
		return "", false
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = digitsPattern.ReplaceAllString(base, " ")
	base = filenameSplits.Replace(base)

	kept := make([]string, 0, maxNameWords)
	for _, word := range strings.Fields(camelBoundary.ReplaceAllString(base, "$1 $2")) {
		if _, noisy := filenameNoise[strings.ToLower(word)]; noisy {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 || len(kept) > maxNameWords {
		return "", false
	}
	return acceptName(strings.Join(kept, " "))
}

func acceptName(candidate string) (string, bool) {
	candidate = camelBoundary.ReplaceAllString(strings.TrimSpace(candidate), "$1 $2")

	words := make([]string, 0, maxNameWords)
	for _, word := range strings.Fields(candidate) {
		if _, stop := nameStopWords[strings.ToLower(word)]; stop {
			continue
		}
		words = append(words, word)
	}
	if len(words) == 0 || len(words) > maxNameWords {
		return "", false
	}
	for _, word := range words {
		if len([]rune(word)) < minWordLength || !isAlphabetic(word) {
			return "", false
		}
		if _, bad := disallowedNames[strings.ToLower(word)]; bad {
			return "", false
		}
	}

	joined := strings.Join(words, " ")
	if len([]rune(joined)) > maxNameLength {
		return "", false
	}
	if _, bad := disallowedNames[strings.ToLower(joined)]; bad {
		return "", false
	}
	return titleCase(joined), true
}

func isAlphabetic(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return word != ""
}

func titleCase(s string) string {
	// Casers keep internal state; build one per call.
	return cases.Title(language.English).String(strings.ToLower(s))
}

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
