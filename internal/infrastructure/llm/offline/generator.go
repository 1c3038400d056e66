package offline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// Generator answers by listing the retrieved invoices. It never calls a model.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) GenerateAnswer(
	_ context.Context,
	_ string,
	_ []domain.ConversationMessage,
	invoices []domain.RetrievedInvoice,
) (string, error) {
	if len(invoices) == 0 {
		return "No matching invoices were found.", nil
	}

	var b strings.Builder
	var total float64
	fmt.Fprintf(&b, "Found %d matching invoice(s):\n", len(invoices))
	for _, hit := range invoices {
		r := hit.Record
		total += r.Policy.ReimbursableAmount
		fmt.Fprintf(&b, "- %s: %s, %s, ₹%.2f claimed, %s (₹%.2f reimbursable)",
			r.InvoiceID,
			r.Fields.EmployeeName,
			r.Category,
			r.Amount(),
			r.Policy.Status,
			r.Policy.ReimbursableAmount,
		)
		if r.Fraud.IsFraud {
			fmt.Fprintf(&b, ", fraud: %s", r.Fraud.Reason)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total reimbursable: ₹%.2f", total)
	return b.String(), nil
}
