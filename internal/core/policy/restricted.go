package policy

import (
	"regexp"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/extract"
)

type restrictedMatcher struct {
	re *regexp.Regexp
}

type restrictedItems struct {
	mentioned bool
	amount    float64
	names     []string
}

func newRestrictedMatcher(vocabulary []string) *restrictedMatcher {
	terms := make([]string, 0, len(vocabulary))
	for _, word := range vocabulary {
		fields := strings.Fields(strings.ToLower(word))
		if len(fields) == 0 {
			continue
		}
		for i, f := range fields {
			fields[i] = regexp.QuoteMeta(f)
		}
		terms = append(terms, strings.Join(fields, `\s+`))
	}
	if len(terms) == 0 {
		return &restrictedMatcher{}
	}
	return &restrictedMatcher{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(terms, "|") + `)\b`)}
}

// find sums the line totals of items named with restricted vocabulary.
func (m *restrictedMatcher) find(text string) restrictedItems {
	if m.re == nil || !m.re.MatchString(text) {
		return restrictedItems{}
	}
	found := restrictedItems{mentioned: true}
	for _, item := range extract.LineItems(text) {
		if m.re.MatchString(item.Name) {
			found.amount += item.Total
			found.names = append(found.names, item.Name)
		}
	}
	return found
}
