package bootstrap

import (
	"testing"

	"github.com/kirillkom/invoice-reimbursement/internal/config"
	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

func TestCategoryAmountsDropsUnknownKeys(t *testing.T) {
	got := categoryAmounts(map[string]float64{"Meal": 200, "cab": 150, "yacht": 9000})
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %v", got)
	}
	if got[domain.CategoryMeal] != 200 || got[domain.CategoryCab] != 150 {
		t.Fatalf("unexpected mapping %v", got)
	}
}

func TestFraudThresholdsFromPolicy(t *testing.T) {
	rules := config.DefaultPolicy()
	rules.Fraud.MaxAgeDays = 90

	th := fraudThresholds(rules.Fraud)
	if th.MaxAgeDays != 90 {
		t.Fatalf("MaxAgeDays = %d, want 90", th.MaxAgeDays)
	}
	if th.Ceilings[domain.CategoryTravel] != 50000 {
		t.Fatalf("travel ceiling = %v", th.Ceilings[domain.CategoryTravel])
	}
	want := []domain.Category{domain.CategoryMeal, domain.CategoryCab, domain.CategoryGeneral}
	if len(th.RoundCategories) != len(want) {
		t.Fatalf("RoundCategories = %v", th.RoundCategories)
	}
	for i := range want {
		if th.RoundCategories[i] != want[i] {
			t.Fatalf("RoundCategories = %v, want %v", th.RoundCategories, want)
		}
	}
}
