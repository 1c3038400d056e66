package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	numberToken   = `(\d{1,3}(?:,\d{2,3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`
	currencyToken = `(?:₹|\brs\b\.?|\binr\b)`
)

func amountPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + prefix + `[:\s]*` + currencyToken + `?\s*` + numberToken)
}

// Most specific first. Every match of every pattern is a candidate.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)₹\s*` + numberToken + `\s*\n\s*total\s*fare`),
	amountPattern(`total\s*fare`),
	amountPattern(`net\s*amount`),
	amountPattern(`grand\s*total`),
	amountPattern(`final\s*amount`),
	amountPattern(`bill\s*amount`),
	amountPattern(`amount\s*payable`),
	amountPattern(`amount\s*paid`),
	amountPattern(`total\s*amount`),
	amountPattern(`ride\s*fee`),
	amountPattern(`total`),
	amountPattern(`amount`),
	regexp.MustCompile(`(?i)` + currencyToken + `\s*` + numberToken),
	regexp.MustCompile(`(?i)` + numberToken + `\s*` + currencyToken),
}

// Amount returns the largest plausible currency amount in text, or nil.
func (e *Extractor) Amount(text string) *float64 {
	var (
		best  float64
		found bool
	)
	for _, candidate := range amountCandidates(text) {
		if candidate < e.opts.MinAmount || candidate > e.opts.MaxAmount {
			continue
		}
		if !found || candidate > best {
			best = candidate
			found = true
		}
	}
	if !found {
		return nil
	}
	return &best
}

func amountCandidates(text string) []float64 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []float64
	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := parseNumber(m[1]); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

func parseNumber(raw string) (float64, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
