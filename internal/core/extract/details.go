package extract

import (
	"regexp"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

var (
	boardingPattern    = regexp.MustCompile(`(?i)boarding\s*(?:point|from)?[ \t]*[:\-][ \t]*([^\n]+)`)
	destinationPattern = regexp.MustCompile(`(?i)destination[ \t]*[:\-]?[ \t]+([^\n]+)`)
	seatPattern        = regexp.MustCompile(`(?i)seat\s*(?:number|no\.?)[ \t]*[:\-]?[ \t]*([A-Z]?\d{1,3}[A-Z]?)`)

	restaurantPattern = regexp.MustCompile(`(?m)^[ \t]*([A-Z][A-Z&' ]{2,}[A-Z])[ \t]*$`)

	pickupPattern  = regexp.MustCompile(`(?i)pick[\s-]*up\s*(?:address|location|point)?[ \t]*[:\-][ \t]*([^\n]+)`)
	dropoffPattern = regexp.MustCompile(`(?i)drop(?:[\s-]*off)?\s*(?:address|location|point)[ \t]*[:\-][ \t]*([^\n]+)`)
	rideFeePattern = regexp.MustCompile(`(?i)ride\s*fee[ \t]*[:\-]?[ \t]*` + currencyToken + `?[ \t]*` + numberToken)

	lineItemPattern = regexp.MustCompile(`(?m)^[ \t]*(\d{1,3})[ \t]+([A-Za-z][A-Za-z0-9 &'()./-]*?)[ \t]+(\d+(?:\.\d{1,2})?)(?:[ \t]+(\d+(?:\.\d{1,2})?))?[ \t]*$`)
)

var monthWords = wordSet(
	"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
	"january", "february", "march", "april", "june", "july", "august", "september", "october",
	"november", "december",
)

// Details runs the label-anchored extractors for the given category.
func (e *Extractor) Details(text string, category domain.Category) (details domain.Details) {
	defer func() {
		if r := recover(); r != nil {
			details = domain.Details{}
		}
	}()
	if strings.TrimSpace(text) == "" {
		return domain.Details{}
	}
	text = NormalizeText(text)

	switch category {
	case domain.CategoryTravel:
		details.Boarding = firstGroup(boardingPattern, text)
		details.Destination = firstGroup(destinationPattern, text)
		details.SeatNumber = firstGroup(seatPattern, text)
	case domain.CategoryMeal:
		details.Restaurant = firstGroup(restaurantPattern, text)
		details.Items = LineItems(text)
	case domain.CategoryCab:
		details.PickupAddress = firstGroup(pickupPattern, text)
		details.DropoffAddress = firstGroup(dropoffPattern, text)
		if raw := firstGroup(rideFeePattern, text); raw != "" {
			if fee, ok := parseNumber(raw); ok {
				details.RideFee = &fee
			}
		}
	}
	return details
}

// LineItems finds "qty name unit-price [line-total]" rows. A missing line total
// is computed as qty * unit price.
func LineItems(text string) []domain.LineItem {
	var items []domain.LineItem
	for _, m := range lineItemPattern.FindAllStringSubmatch(NormalizeText(text), -1) {
		name := strings.TrimSpace(m[2])
		if _, isMonth := monthWords[strings.ToLower(name)]; isMonth {
			continue
		}
		qty, ok := parseNumber(m[1])
		if !ok || qty <= 0 {
			continue
		}
		price, ok := parseNumber(m[3])
		if !ok {
			continue
		}
		total := qty * price
		if m[4] != "" {
			if v, ok := parseNumber(m[4]); ok {
				total = v
			}
		}
		items = append(items, domain.LineItem{
			Quantity:  int(qty),
			Name:      name,
			UnitPrice: price,
			Total:     total,
		})
	}
	return items
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
