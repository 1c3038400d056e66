// Package policy decides the reimbursement status of a single invoice.
//
// The numeric outcome is always computed deterministically. An optional text
// completer may phrase the reason, but it can never change the status or the
// reimbursable amount.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

type Config struct {
	// Categories without a limit are reimbursed in full.
	Limits               map[domain.Category]float64
	RestrictedCategories []domain.Category
	RestrictedVocabulary []string
	NarrativeTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limits: map[domain.Category]float64{
			domain.CategoryMeal:   200,
			domain.CategoryCab:    150,
			domain.CategoryTravel: 2000,
		},
		RestrictedCategories: []domain.Category{domain.CategoryMeal},
		RestrictedVocabulary: []string{"alcohol", "liquor", "whisky", "whiskey", "beer", "wine", "vodka", "rum", "royal stag"},
		NarrativeTimeout:     30 * time.Second,
	}
}

// Decision is the input for one invoice.
type Decision struct {
	Category     domain.Category
	Amount       float64
	Text         string
	PolicyText   string
	EmployeeName string
}

type Engine struct {
	cfg        Config
	restricted *restrictedMatcher
	completer  ports.TextCompleter
	observer   ports.PipelineObserver
}

// NewEngine builds an engine. A nil completer keeps every decision on the
// templated path.
func NewEngine(cfg Config, completer ports.TextCompleter, observer ports.PipelineObserver) *Engine {
	if cfg.Limits == nil {
		cfg.Limits = DefaultConfig().Limits
	}
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = DefaultConfig().NarrativeTimeout
	}
	return &Engine{
		cfg:        cfg,
		restricted: newRestrictedMatcher(cfg.RestrictedVocabulary),
		completer:  completer,
		observer:   observer,
	}
}

func (e *Engine) Limit(category domain.Category) (float64, bool) {
	limit, ok := e.cfg.Limits[category]
	return limit, ok
}

// Decide returns the deterministic verdict, with the reason optionally
// rephrased by the completer.
func (e *Engine) Decide(ctx context.Context, d Decision) domain.PolicyVerdict {
	verdict := e.Evaluate(d)
	if e.completer == nil {
		return verdict
	}

	n, err := e.requestNarrative(ctx, d, verdict)
	if err != nil {
		slog.Warn("narrative_fallback",
			"category", string(d.Category),
			"status", string(verdict.Status),
			"error", err.Error(),
		)
		if e.observer != nil {
			e.observer.NarrativeFallback(fallbackReason(err))
		}
		return verdict
	}

	verdict.Reason = mergeNarrative(verdict, n)
	return verdict
}

// Evaluate applies limits and the restricted-item adjustment without any I/O.
func (e *Engine) Evaluate(d Decision) domain.PolicyVerdict {
	limit, hasLimit := e.cfg.Limits[d.Category]
	amount := d.Amount

	var restricted restrictedItems
	if e.appliesRestrictions(d.Category) {
		restricted = e.restricted.find(d.Text)
	}
	eligible := amount - restricted.amount

	verdict := domain.PolicyVerdict{EligibleAmount: eligible, Limit: limit}
	switch {
	case restricted.amount > 0 && eligible <= 0:
		verdict.Status = domain.StatusDeclined
		verdict.ReimbursableAmount = 0
		verdict.EligibleAmount = 0
	case hasLimit && eligible > limit:
		verdict.Status = domain.StatusPartiallyReimbursed
		verdict.ReimbursableAmount = limit
	default:
		// The limit rule sees only the eligible amount; excluded items are named in the reason.
		verdict.Status = domain.StatusFullyReimbursed
		verdict.ReimbursableAmount = eligible
	}
	verdict.Reason = templatedReason(d, verdict, hasLimit, restricted)
	return verdict
}

func (e *Engine) appliesRestrictions(category domain.Category) bool {
	for _, c := range e.cfg.RestrictedCategories {
		if c == category {
			return true
		}
	}
	return false
}

func templatedReason(d Decision, v domain.PolicyVerdict, hasLimit bool, restricted restrictedItems) string {
	var b strings.Builder
	if restricted.amount > 0 {
		fmt.Fprintf(&b, "Restricted items (%s) worth %s excluded from the %s total. ",
			strings.Join(restricted.names, ", "), money(restricted.amount), money(d.Amount))
	} else if restricted.mentioned {
		b.WriteString("Restricted items are mentioned but no priced line could be attributed to them. ")
	}

	label := "Amount"
	if restricted.amount > 0 {
		label = "Eligible amount"
	}
	switch {
	case v.Status == domain.StatusDeclined:
		b.WriteString("Nothing remains eligible for reimbursement.")
	case !hasLimit:
		fmt.Fprintf(&b, "%s %s has no fixed %s limit and is reimbursable.", label, money(v.EligibleAmount), d.Category)
	case v.EligibleAmount > v.Limit:
		fmt.Fprintf(&b, "%s %s exceeds the %s limit of %s, reimbursable amount capped at %s.",
			label, money(v.EligibleAmount), d.Category, money(v.Limit), money(v.ReimbursableAmount))
	default:
		fmt.Fprintf(&b, "%s %s is within the %s limit of %s.", label, money(v.EligibleAmount), d.Category, money(v.Limit))
	}
	return b.String()
}

func money(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}
