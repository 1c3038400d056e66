package policy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fallbackCounter struct {
	reasons []string
}

func (*fallbackCounter) DocumentStarted()                                      {}
func (*fallbackCounter) DocumentStopped()                                      {}
func (*fallbackCounter) DocumentProcessed(domain.InvoiceRecord, time.Duration) {}
func (*fallbackCounter) DocumentSkipped(domain.SkipReason)                     {}
func (*fallbackCounter) BatchFinished(domain.BatchStatus)                      {}
func (c *fallbackCounter) NarrativeFallback(reason string) {
	c.reasons = append(c.reasons, reason)
}

const mealReceipt = "SPICE GARDEN\n2 Royal Stag Whisky 150.00 300.00\n2 Biriyani 200.00 400.00\nTotal: 770.00"

func TestEvaluateLimitProperty(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	limits := map[domain.Category]float64{
		domain.CategoryMeal:   200,
		domain.CategoryCab:    150,
		domain.CategoryTravel: 2000,
	}
	for category, limit := range limits {
		for _, amount := range []float64{10, limit - 0.01, limit, limit + 0.01, limit * 3, 99999} {
			verdict := engine.Evaluate(Decision{Category: category, Amount: amount})
			if amount <= limit {
				if verdict.Status != domain.StatusFullyReimbursed || verdict.ReimbursableAmount != amount {
					t.Fatalf("%s %v: got %s/%v, want fully reimbursed", category, amount, verdict.Status, verdict.ReimbursableAmount)
				}
				continue
			}
			if verdict.Status != domain.StatusPartiallyReimbursed || verdict.ReimbursableAmount != limit {
				t.Fatalf("%s %v: got %s/%v, want partial capped at %v", category, amount, verdict.Status, verdict.ReimbursableAmount, limit)
			}
		}
	}
}

func TestEvaluateGeneralHasNoCeiling(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{Category: domain.CategoryGeneral, Amount: 45000})
	if verdict.Status != domain.StatusFullyReimbursed || verdict.ReimbursableAmount != 45000 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestEvaluateTravelOverLimit(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{Category: domain.CategoryTravel, Amount: 2100})
	if verdict.Status != domain.StatusPartiallyReimbursed || verdict.ReimbursableAmount != 2000 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if !strings.Contains(verdict.Reason, "₹2000.00") {
		t.Fatalf("reason should cite the limit, got %q", verdict.Reason)
	}
}

func TestEvaluateMealWithAlcohol(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{
		Category: domain.CategoryMeal,
		Amount:   770,
		Text:     mealReceipt,
	})
	if verdict.Status != domain.StatusPartiallyReimbursed {
		t.Fatalf("status = %s, want partially reimbursed", verdict.Status)
	}
	if verdict.EligibleAmount != 470 {
		t.Fatalf("eligible = %v, want 470", verdict.EligibleAmount)
	}
	if verdict.ReimbursableAmount != 200 {
		t.Fatalf("reimbursable = %v, want 200", verdict.ReimbursableAmount)
	}
	if !strings.Contains(verdict.Reason, "Royal Stag Whisky") {
		t.Fatalf("reason should name the excluded item, got %q", verdict.Reason)
	}
}

func TestEvaluateRestrictedAdjustments(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil, nil)
	cases := []struct {
		name         string
		amount       float64
		text         string
		status       domain.ReimbursementStatus
		reimbursable float64
	}{
		{
			name:         "only alcohol",
			amount:       300,
			text:         "2 Kingfisher Beer 150.00 300.00\nTotal: 300.00",
			status:       domain.StatusDeclined,
			reimbursable: 0,
		},
		{
			name:         "eligible under limit",
			amount:       250,
			text:         "1 Red Wine 120.00\n1 Paneer Tikka 130.00\nTotal: 250.00",
			status:       domain.StatusFullyReimbursed,
			reimbursable: 130,
		},
		{
			name:         "only alcohol with crlf",
			amount:       300,
			text:         "2 Kingfisher Beer 150.00 300.00\r\nTotal: 300.00",
			status:       domain.StatusDeclined,
			reimbursable: 0,
		},
		{
			name:         "only alcohol with bare cr",
			amount:       300,
			text:         "2 Kingfisher Beer 150.00 300.00\rTotal: 300.00",
			status:       domain.StatusDeclined,
			reimbursable: 0,
		},
		{
			name:         "mentioned without priced line",
			amount:       180,
			text:         "No alcohol served\nTotal: 180.00",
			status:       domain.StatusFullyReimbursed,
			reimbursable: 180,
		},
		{
			name:         "word boundary",
			amount:       150,
			text:         "2 Ginger Rumali Roti 75.00\nTotal: 150.00",
			status:       domain.StatusFullyReimbursed,
			reimbursable: 150,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := engine.Evaluate(Decision{Category: domain.CategoryMeal, Amount: tc.amount, Text: tc.text})
			if verdict.Status != tc.status || verdict.ReimbursableAmount != tc.reimbursable {
				t.Fatalf("got %s/%v, want %s/%v (%s)", verdict.Status, verdict.ReimbursableAmount, tc.status, tc.reimbursable, verdict.Reason)
			}
		})
	}
}

func TestEvaluateMealWithAlcoholCRLF(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{
		Category: domain.CategoryMeal,
		Amount:   770,
		Text:     strings.ReplaceAll(mealReceipt, "\n", "\r\n"),
	})
	if verdict.Status != domain.StatusPartiallyReimbursed || verdict.EligibleAmount != 470 || verdict.ReimbursableAmount != 200 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestEvaluateEligibleWithinLimitNamesExcludedItems(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{
		Category: domain.CategoryMeal,
		Amount:   250,
		Text:     "1 Red Wine 120.00\n1 Paneer Tikka 130.00\nTotal: 250.00",
	})
	if verdict.Status != domain.StatusFullyReimbursed || verdict.EligibleAmount != 130 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if !strings.Contains(verdict.Reason, "Red Wine") || !strings.Contains(verdict.Reason, "within the meal limit") {
		t.Fatalf("reason = %q", verdict.Reason)
	}
}

func TestEvaluateRestrictionsOnlyForConfiguredCategories(t *testing.T) {
	verdict := NewEngine(DefaultConfig(), nil, nil).Evaluate(Decision{
		Category: domain.CategoryCab,
		Amount:   120,
		Text:     "1 Beer Mug 120.00",
	})
	if verdict.Status != domain.StatusFullyReimbursed {
		t.Fatalf("cab invoices should ignore restricted items, got %+v", verdict)
	}
}

func TestDecideUsesAgreeingNarrative(t *testing.T) {
	completer := &fakeCompleter{response: "Sure!\n{\"status\": \"Partially Reimbursed\", \"reason\": \"Policy section 3 caps travel at ₹2000.\"}"}
	engine := NewEngine(DefaultConfig(), completer, nil)

	verdict := engine.Decide(context.Background(), Decision{
		Category:   domain.CategoryTravel,
		Amount:     2100,
		PolicyText: "Travel is capped at 2000 per trip.",
	})
	if verdict.Reason != "Policy section 3 caps travel at ₹2000." {
		t.Fatalf("reason = %q", verdict.Reason)
	}
	if len(completer.prompts) != 1 || !strings.Contains(completer.prompts[0], "Travel is capped at 2000 per trip.") {
		t.Fatalf("prompt should carry policy text, got %v", completer.prompts)
	}
}

func TestDecideIgnoresContradictingNarrative(t *testing.T) {
	completer := &fakeCompleter{response: `{"status": "Declined", "reason": "Looks suspicious."}`}
	engine := NewEngine(DefaultConfig(), completer, nil)

	verdict := engine.Decide(context.Background(), Decision{Category: domain.CategoryMeal, Amount: 150})
	if verdict.Status != domain.StatusFullyReimbursed || verdict.ReimbursableAmount != 150 {
		t.Fatalf("narrative must not change the outcome, got %+v", verdict)
	}
	if !strings.Contains(verdict.Reason, "within the meal limit") || !strings.Contains(verdict.Reason, "Reviewer note: Looks suspicious.") {
		t.Fatalf("reason = %q", verdict.Reason)
	}
}

func TestDecideFallsBackToTemplate(t *testing.T) {
	cases := []struct {
		name      string
		completer *fakeCompleter
		reason    string
	}{
		{name: "unavailable", completer: &fakeCompleter{err: errors.New("connection refused")}, reason: "error"},
		{name: "timeout", completer: &fakeCompleter{err: context.DeadlineExceeded}, reason: "timeout"},
		{name: "empty", completer: &fakeCompleter{response: "   "}, reason: "empty"},
		{name: "prose", completer: &fakeCompleter{response: "The invoice is fully reimbursed."}, reason: "invalid"},
		{name: "missing reason", completer: &fakeCompleter{response: `{"status": "Fully Reimbursed"}`}, reason: "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			observer := &fallbackCounter{}
			engine := NewEngine(DefaultConfig(), tc.completer, observer)
			want := engine.Evaluate(Decision{Category: domain.CategoryCab, Amount: 320})

			got := engine.Decide(context.Background(), Decision{Category: domain.CategoryCab, Amount: 320})
			if got != want {
				t.Fatalf("Decide() = %+v, want templated %+v", got, want)
			}
			if len(observer.reasons) != 1 || observer.reasons[0] != tc.reason {
				t.Fatalf("fallback reasons = %v, want [%s]", observer.reasons, tc.reason)
			}
		})
	}
}
