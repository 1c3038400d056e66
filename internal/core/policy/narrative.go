package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const (
	policyPromptLimit  = 4000
	invoicePromptLimit = 1000
)

const narrativeSchemaJSON = `{
  "type": "object",
  "required": ["status", "reason"],
  "properties": {
    "status": {"type": "string", "minLength": 1},
    "reason": {"type": "string", "minLength": 1}
  }
}`

var narrativeSchema = compileNarrativeSchema()

var (
	errNarrativeEmpty   = errors.New("empty narrative")
	errNarrativeInvalid = errors.New("narrative does not match schema")
)

type narrative struct {
	Status domain.ReimbursementStatus
	Reason string
}

func compileNarrativeSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("narrative.json", strings.NewReader(narrativeSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add narrative schema: %v", err))
	}
	schema, err := compiler.Compile("narrative.json")
	if err != nil {
		panic(fmt.Sprintf("compile narrative schema: %v", err))
	}
	return schema
}

func (e *Engine) requestNarrative(ctx context.Context, d Decision, v domain.PolicyVerdict) (narrative, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.NarrativeTimeout)
	defer cancel()

	raw, err := e.completer.Complete(callCtx, buildNarrativePrompt(d, v))
	if err != nil {
		return narrative{}, fmt.Errorf("complete narrative: %w", err)
	}
	return parseNarrative(raw)
}

func parseNarrative(raw string) (narrative, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return narrative{}, errNarrativeEmpty
	}

	var doc any
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &doc); err != nil {
		return narrative{}, fmt.Errorf("%w: %v", errNarrativeInvalid, err)
	}
	if err := narrativeSchema.Validate(doc); err != nil {
		return narrative{}, fmt.Errorf("%w: %v", errNarrativeInvalid, err)
	}

	obj := doc.(map[string]any)
	reason := strings.TrimSpace(obj["reason"].(string))
	if reason == "" {
		return narrative{}, errNarrativeEmpty
	}
	status, _ := domain.ParseReimbursementStatus(obj["status"].(string))
	return narrative{Status: status, Reason: reason}, nil
}

// mergeNarrative keeps the narrative only when it agrees with the computed
// status. Otherwise it is appended as a reviewer note.
func mergeNarrative(v domain.PolicyVerdict, n narrative) string {
	if n.Status == v.Status {
		return n.Reason
	}
	return v.Reason + " Reviewer note: " + n.Reason
}

func buildNarrativePrompt(d Decision, v domain.PolicyVerdict) string {
	var b strings.Builder
	b.WriteString("You are an HR policy analyst. Explain the reimbursement decision for the invoice below, citing the policy where possible.\n")
	b.WriteString("The decision has already been computed and is final. Do not recompute it.\n\n")

	b.WriteString("HR POLICY:\n")
	policyText := strings.TrimSpace(d.PolicyText)
	if policyText == "" {
		policyText = "(no policy document provided)"
	}
	b.WriteString(domain.TruncateText(policyText, policyPromptLimit))
	b.WriteString("\n\nINVOICE:\n")
	fmt.Fprintf(&b, "Employee: %s\n", d.EmployeeName)
	fmt.Fprintf(&b, "Type: %s\n", d.Category)
	fmt.Fprintf(&b, "Amount: %s\n", money(d.Amount))
	fmt.Fprintf(&b, "Content: %s\n\n", domain.TruncateText(d.Text, invoicePromptLimit))

	b.WriteString("DECISION:\n")
	fmt.Fprintf(&b, "Status: %s\n", v.Status)
	fmt.Fprintf(&b, "Eligible amount: %s\n", money(v.EligibleAmount))
	if v.Limit > 0 {
		fmt.Fprintf(&b, "Category limit: %s\n", money(v.Limit))
	}
	fmt.Fprintf(&b, "Reimbursable amount: %s\n\n", money(v.ReimbursableAmount))

	b.WriteString(`Respond only with JSON: {"status": "Fully Reimbursed|Partially Reimbursed|Declined", "reason": "..."}`)
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errNarrativeEmpty):
		return "empty"
	case errors.Is(err, errNarrativeInvalid):
		return "invalid"
	default:
		return "error"
	}
}
