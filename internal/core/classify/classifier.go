// Package classify assigns an invoice category from document text and filename.
package classify

import (
	"regexp"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type indicatorSet struct {
	category   domain.Category
	indicators []*regexp.Regexp
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Evaluated in order. Meal and travel vocabulary is more specific than the
// generic transport words in the cab set, so cab goes last.
var indicatorSets = []indicatorSet{
	{
		category: domain.CategoryMeal,
		indicators: compileAll(
			`\brestaurant`, `\bfood\b`, `\bmeals?\b`, `\blunch\b`, `\bdinner\b`, `\bbreakfast\b`,
			`\bcaf(?:e\b|é)`, `\bcoffee\b`, `\btea\b`, `\bburgers?\b`, `\bpizza`, `\brice\b`,
			`\bbiri?yani\b`, `\bcurry\b`, `\bbeverages?\b`, `\bdrinks?\b`, `\bmenu\b`,
			`\btable\s*(?:no\.?|number|:)`, `\bdine[\s-]?in\b`, `\bkot\b`, `receipt.*\bfood\b`,
		),
	},
	{
		category: domain.CategoryTravel,
		indicators: compileAll(
			`\bflights?\b`, `\bairlines?\b`, `\bairport\b`, `\bboarding\b`, `\bseat\s*(?:no|number)`,
			`\baircraft\b`, `\bdeparture\b`, `\barrival\b`, `\bterminal\b`, `\bgate\b`,
			`air\s*india`, `ticket.*travel`, `\bjourney\b`, `passenger\s*details`, `\be-?ticket\b`,
			`\bpnr\b`, `booking\s*(?:id|reference|ref)`, `travel\s*agency`, `\bbus\s*ticket`,
			`\btrain\s*ticket`, `reporting\s*date`, `dropping\s*point`, `\bredbus\b`,
		),
	},
	{
		category: domain.CategoryCab,
		indicators: compileAll(
			`\bcab\b`, `\btaxi\b`, `\buber\b`, `\bola\b`, `\brapido\b`, `\bdriver\b`, `\bride\b`,
			`\bpickup\b`, `\bpick-up\b`, `\bdrop\b`, `\btransport`, `\bvehicle\b`, `car\s*hire`,
			`\bfare\b`, `trip\s*invoice`, `toll.*convenience`, `\bka\s?\d{2}\s?[a-z]{1,2}\s?\d{4}\b`,
		),
	},
}

var filenameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// Classify returns the first category whose indicators match text or filename.
func Classify(text, filename string) domain.Category {
	text = strings.ToLower(text)
	filename = filenameSeparators.Replace(strings.ToLower(filename))
	for _, set := range indicatorSets {
		if matchesAny(set.indicators, text) || matchesAny(set.indicators, filename) {
			return set.category
		}
	}
	return domain.CategoryGeneral
}

func matchesAny(indicators []*regexp.Regexp, s string) bool {
	if s == "" {
		return false
	}
	for _, re := range indicators {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var archiveHints = []struct {
	category domain.Category
	keywords []string
}{
	{category: domain.CategoryMeal, keywords: []string{"meal", "food", "restaurant"}},
	{category: domain.CategoryTravel, keywords: []string{"travel", "flight", "book", "bus", "train"}},
	{category: domain.CategoryCab, keywords: []string{"cab", "transport", "taxi"}},
}

// ArchivePrior guesses a category from the containing archive's name.
func ArchivePrior(archiveName string) domain.Category {
	name := strings.ToLower(archiveName)
	if name == "" {
		return domain.CategoryGeneral
	}
	for _, hint := range archiveHints {
		for _, kw := range hint.keywords {
			if strings.Contains(name, kw) {
				return hint.category
			}
		}
	}
	return domain.CategoryGeneral
}

// Resolve lets a content classification override the archive prior unless it is general.
func Resolve(prior, content domain.Category) domain.Category {
	if content != "" && content != domain.CategoryGeneral {
		return content
	}
	if prior == "" {
		return domain.CategoryGeneral
	}
	return prior
}
