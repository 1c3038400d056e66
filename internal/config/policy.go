package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable reimbursement and anomaly constants. The values
// mirror historical behaviour; none of them is cited from a written policy.
type Policy struct {
	Limits          map[string]float64 `yaml:"limits"`
	DefaultAmounts  map[string]float64 `yaml:"default_amounts"`
	Extraction      ExtractionPolicy   `yaml:"extraction"`
	Fraud           FraudPolicy        `yaml:"fraud"`
	RestrictedItems RestrictedPolicy   `yaml:"restricted_items"`
}

type ExtractionPolicy struct {
	MinAmount float64 `yaml:"min_amount"`
	MaxAmount float64 `yaml:"max_amount"`
}

type FraudPolicy struct {
	MaxJourneyDays      int                `yaml:"max_journey_days"`
	MaxAgeDays          int                `yaml:"max_age_days"`
	MaxFutureDays       int                `yaml:"max_future_days"`
	Ceilings            map[string]float64 `yaml:"ceilings"`
	RoundMultiple       float64            `yaml:"round_multiple"`
	RoundFloor          float64            `yaml:"round_floor"`
	RoundCategories     []string           `yaml:"round_categories"`
	DuplicateLineRatio  float64            `yaml:"duplicate_line_ratio"`
	DuplicateMinLines   int                `yaml:"duplicate_min_lines"`
	MaxMissingFields    int                `yaml:"max_missing_fields"`
	ConfidencePerSignal float64            `yaml:"confidence_per_signal"`
}

type RestrictedPolicy struct {
	Categories []string `yaml:"categories"`
	Vocabulary []string `yaml:"vocabulary"`
}

func DefaultPolicy() Policy {
	return Policy{
		Limits: map[string]float64{
			"meal":   200,
			"cab":    150,
			"travel": 2000,
		},
		DefaultAmounts: map[string]float64{
			"meal":    850,
			"travel":  15000,
			"cab":     1200,
			"general": 1000,
		},
		Extraction: ExtractionPolicy{
			MinAmount: 10,
			MaxAmount: 100000,
		},
		Fraud: FraudPolicy{
			MaxJourneyDays: 30,
			MaxAgeDays:     365,
			MaxFutureDays:  180,
			Ceilings: map[string]float64{
				"meal":   5000,
				"cab":    3000,
				"travel": 50000,
			},
			RoundMultiple:       100,
			RoundFloor:          1000,
			RoundCategories:     []string{"meal", "cab", "general"},
			DuplicateLineRatio:  0.5,
			DuplicateMinLines:   10,
			MaxMissingFields:    1,
			ConfidencePerSignal: 0.3,
		},
		RestrictedItems: RestrictedPolicy{
			Categories: []string{"meal"},
			Vocabulary: []string{
				"alcohol", "liquor", "whisky", "whiskey", "scotch", "beer", "lager",
				"wine", "vodka", "rum", "gin", "brandy", "tequila", "champagne",
				"cocktail", "royal stag", "old monk", "blenders pride", "budweiser", "heineken",
			},
		},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (Policy, error) {
	policy := DefaultPolicy()
	var overlay Policy
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Policy{}, fmt.Errorf("parse policy yaml: %w", err)
	}
	policy.merge(overlay)
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p *Policy) merge(o Policy) {
	for k, v := range o.Limits {
		p.Limits[strings.ToLower(k)] = v
	}
	for k, v := range o.DefaultAmounts {
		p.DefaultAmounts[strings.ToLower(k)] = v
	}
	if o.Extraction.MinAmount > 0 {
		p.Extraction.MinAmount = o.Extraction.MinAmount
	}
	if o.Extraction.MaxAmount > 0 {
		p.Extraction.MaxAmount = o.Extraction.MaxAmount
	}

	f := o.Fraud
	if f.MaxJourneyDays > 0 {
		p.Fraud.MaxJourneyDays = f.MaxJourneyDays
	}
	if f.MaxAgeDays > 0 {
		p.Fraud.MaxAgeDays = f.MaxAgeDays
	}
	if f.MaxFutureDays > 0 {
		p.Fraud.MaxFutureDays = f.MaxFutureDays
	}
	for k, v := range f.Ceilings {
		p.Fraud.Ceilings[strings.ToLower(k)] = v
	}
	if f.RoundMultiple > 0 {
		p.Fraud.RoundMultiple = f.RoundMultiple
	}
	if f.RoundFloor > 0 {
		p.Fraud.RoundFloor = f.RoundFloor
	}
	if f.RoundCategories != nil {
		p.Fraud.RoundCategories = f.RoundCategories
	}
	if f.DuplicateLineRatio > 0 {
		p.Fraud.DuplicateLineRatio = f.DuplicateLineRatio
	}
	if f.DuplicateMinLines > 0 {
		p.Fraud.DuplicateMinLines = f.DuplicateMinLines
	}
	if f.MaxMissingFields > 0 {
		p.Fraud.MaxMissingFields = f.MaxMissingFields
	}
	if f.ConfidencePerSignal > 0 {
		p.Fraud.ConfidencePerSignal = f.ConfidencePerSignal
	}

	if o.RestrictedItems.Categories != nil {
		p.RestrictedItems.Categories = o.RestrictedItems.Categories
	}
	if o.RestrictedItems.Vocabulary != nil {
		p.RestrictedItems.Vocabulary = o.RestrictedItems.Vocabulary
	}
}

func (p Policy) Validate() error {
	var errs []error
	for category, limit := range p.Limits {
		if limit <= 0 {
			errs = append(errs, fmt.Errorf("limit for %q must be positive, got %v", category, limit))
		}
	}
	for category, amount := range p.DefaultAmounts {
		if amount <= 0 {
			errs = append(errs, fmt.Errorf("default amount for %q must be positive, got %v", category, amount))
		}
	}
	for category, ceiling := range p.Fraud.Ceilings {
		if ceiling <= 0 {
			errs = append(errs, fmt.Errorf("fraud ceiling for %q must be positive, got %v", category, ceiling))
		}
	}
	if p.Extraction.MinAmount >= p.Extraction.MaxAmount {
		errs = append(errs, fmt.Errorf("extraction bounds are inverted: [%v, %v]", p.Extraction.MinAmount, p.Extraction.MaxAmount))
	}
	if p.Fraud.DuplicateLineRatio > 1 {
		errs = append(errs, fmt.Errorf("duplicate line ratio must be within (0, 1], got %v", p.Fraud.DuplicateLineRatio))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %w", errors.Join(errs...))
	}
	return nil
}
