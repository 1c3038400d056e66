package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const maxInvoiceSnippet = 600

func buildAnswerPrompt(question string, history []domain.ConversationMessage, invoices []domain.RetrievedInvoice) string {
	var records strings.Builder
	for idx, hit := range invoices {
		r := hit.Record
		fmt.Fprintf(&records,
			"[%d] invoice_id=%s employee=%s date=%s type=%s amount=%.2f status=%s reimbursable=%.2f fraud=%t score=%.3f\nreason: %s\n",
			idx+1,
			r.InvoiceID,
			r.Fields.EmployeeName,
			domain.FormatDate(r.Fields.InvoiceDate),
			r.Category,
			r.Amount(),
			r.Policy.Status,
			r.Policy.ReimbursableAmount,
			r.Fraud.IsFraud,
			hit.Score,
			r.Policy.Reason,
		)
		if r.Fraud.IsFraud {
			fmt.Fprintf(&records, "fraud indicators: %s\n", r.Fraud.Reason)
		}
		if text := domain.TruncateText(r.InvoiceText, maxInvoiceSnippet); text != "" {
			fmt.Fprintf(&records, "text: %s\n", text)
		}
		records.WriteString("\n")
	}

	var conversation strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&conversation, "%s: %s\n", msg.Role, msg.Content)
	}
	if conversation.Len() == 0 {
		conversation.WriteString("(none)\n")
	}

	return fmt.Sprintf(`You answer questions about employee expense invoices.
Use only the invoice records below. Cite invoice ids when you refer to a record.
If the records do not answer the question, say so directly.

Conversation so far:
%s
Question:
%s

Invoice records:
%s`, conversation.String(), question, records.String())
}
