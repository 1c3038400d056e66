package usecase

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// Tried in order; the first accepted capture names the employee.
var employeeFilterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bemployee\s+([a-z]+)`),
	regexp.MustCompile(`\bperson\s+([a-z]+)`),
	regexp.MustCompile(`\binvoices?\s+by\s+([a-z]+)`),
	regexp.MustCompile(`\b([a-z]+)'s\s+invoices?`),
	regexp.MustCompile(`\binvoices?\s+from\s+([a-z]+)`),
}

var nonEmployeeWords = map[string]struct{}{
	"all": {}, "any": {}, "the": {}, "this": {}, "that": {}, "last": {}, "my": {}, "our": {},
	"each": {}, "every": {}, "these": {}, "those": {}, "name": {}, "names": {}, "who": {},
	"with": {}, "which": {}, "is": {}, "was": {}, "and": {}, "or": {},
}

var statusPhrases = []struct {
	phrase string
	status domain.ReimbursementStatus
}{
	{phrase: "fully reimbursed", status: domain.StatusFullyReimbursed},
	{phrase: "partially reimbursed", status: domain.StatusPartiallyReimbursed},
	{phrase: "declined", status: domain.StatusDeclined},
}

// ExtractFilters derives search filters from a chat message by keyword matching.
func ExtractFilters(message string) domain.InvoiceFilter {
	var filter domain.InvoiceFilter
	lower := strings.ToLower(message)

	for _, re := range employeeFilterPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if _, skip := nonEmployeeWords[m[1]]; skip {
			continue
		}
		filter.EmployeeName = cases.Title(language.English).String(m[1])
		break
	}

	for _, p := range statusPhrases {
		if strings.Contains(lower, p.phrase) {
			filter.Status = p.status
			break
		}
	}

	if strings.Contains(lower, "fraud") {
		fraudulent := true
		filter.FraudDetected = &fraudulent
	}
	return filter
}
