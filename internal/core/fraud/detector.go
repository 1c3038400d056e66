// Package fraud runs independent anomaly checks over extracted invoice fields.
//
// The resulting confidence is a heuristic severity score that grows with the
// number of fired checks. It is not a calibrated probability.
package fraud

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type Thresholds struct {
	MaxJourneyDays      int
	MaxAgeDays          int
	MaxFutureDays       int
	Ceilings            map[domain.Category]float64
	RoundMultiple       float64
	RoundFloor          float64
	RoundCategories     []domain.Category
	DuplicateLineRatio  float64
	DuplicateMinLines   int
	MaxMissingFields    int
	ConfidencePerSignal float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxJourneyDays: 30,
		MaxAgeDays:     365,
		MaxFutureDays:  180,
		Ceilings: map[domain.Category]float64{
			domain.CategoryMeal:   5000,
			domain.CategoryCab:    3000,
			domain.CategoryTravel: 50000,
		},
		RoundMultiple:       100,
		RoundFloor:          1000,
		RoundCategories:     []domain.Category{domain.CategoryMeal, domain.CategoryCab, domain.CategoryGeneral},
		DuplicateLineRatio:  0.5,
		DuplicateMinLines:   10,
		MaxMissingFields:    1,
		ConfidencePerSignal: 0.3,
	}
}

// Input is everything a check may look at.
type Input struct {
	Fields   domain.ExtractedFields
	Category domain.Category
	RawText  string
}

type check func(d *Detector, in Input) []string

// Order only affects the order of reasons in the verdict.
var checks = []check{
	(*Detector).travelDates,
	(*Detector).amountAnomalies,
	(*Detector).missingFields,
	(*Detector).duplicateLines,
}

type Detector struct {
	thresholds Thresholds
	now        func() time.Time
}

func New(thresholds Thresholds, now func() time.Time) *Detector {
	def := DefaultThresholds()
	if thresholds.MaxJourneyDays <= 0 {
		thresholds.MaxJourneyDays = def.MaxJourneyDays
	}
	if thresholds.MaxAgeDays <= 0 {
		thresholds.MaxAgeDays = def.MaxAgeDays
	}
	if thresholds.MaxFutureDays <= 0 {
		thresholds.MaxFutureDays = def.MaxFutureDays
	}
	if thresholds.Ceilings == nil {
		thresholds.Ceilings = def.Ceilings
	}
	if thresholds.RoundMultiple <= 0 {
		thresholds.RoundMultiple = def.RoundMultiple
	}
	if thresholds.RoundFloor <= 0 {
		thresholds.RoundFloor = def.RoundFloor
	}
	if thresholds.RoundCategories == nil {
		thresholds.RoundCategories = def.RoundCategories
	}
	if thresholds.DuplicateLineRatio <= 0 {
		thresholds.DuplicateLineRatio = def.DuplicateLineRatio
	}
	if thresholds.DuplicateMinLines <= 0 {
		thresholds.DuplicateMinLines = def.DuplicateMinLines
	}
	if thresholds.MaxMissingFields <= 0 {
		thresholds.MaxMissingFields = def.MaxMissingFields
	}
	if thresholds.ConfidencePerSignal <= 0 {
		thresholds.ConfidencePerSignal = def.ConfidencePerSignal
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{thresholds: thresholds, now: now}
}

// Detect unions the findings of every check. A document may trip several.
func (d *Detector) Detect(fields domain.ExtractedFields, category domain.Category, rawText string) domain.FraudVerdict {
	in := Input{Fields: fields, Category: category, RawText: rawText}
	var indicators []string
	for _, c := range checks {
		indicators = append(indicators, c(d, in)...)
	}
	return domain.NewFraudVerdict(indicators, d.thresholds.ConfidencePerSignal)
}

func (d *Detector) travelDates(in Input) []string {
	if in.Category != domain.CategoryTravel {
		return nil
	}
	reporting, dropping := in.Fields.ReportingDate, in.Fields.DroppingDate
	if reporting == nil || dropping == nil {
		return nil
	}

	var out []string
	gap := daysBetween(*reporting, *dropping)
	switch {
	case gap < 0:
		out = append(out, "dropping date precedes reporting date")
	case gap > d.thresholds.MaxJourneyDays:
		out = append(out, "journey duration exceeds reasonable travel window")
	}

	today := startOfDay(d.now())
	age := daysBetween(*reporting, today)
	switch {
	case age > d.thresholds.MaxAgeDays:
		out = append(out, "invoice too old")
	case -age > d.thresholds.MaxFutureDays:
		out = append(out, "reporting date too far in the future")
	}
	return out
}

func (d *Detector) amountAnomalies(in Input) []string {
	if in.Fields.Amount == nil {
		return nil
	}
	amount := *in.Fields.Amount
	if amount <= 0 {
		return []string{"invalid amount"}
	}

	var out []string
	if ceiling, ok := d.thresholds.Ceilings[in.Category]; ok && amount > ceiling {
		out = append(out, fmt.Sprintf("unusually high %s expense", in.Category))
	}
	if d.roundChecked(in.Category) && amount > d.thresholds.RoundFloor && math.Mod(amount, d.thresholds.RoundMultiple) == 0 {
		out = append(out, "suspicious round amount, possible fabrication")
	}
	return out
}

func (d *Detector) roundChecked(category domain.Category) bool {
	for _, c := range d.thresholds.RoundCategories {
		if c == category {
			return true
		}
	}
	return false
}

func (d *Detector) missingFields(in Input) []string {
	missing := 0
	if !in.Fields.HasName() {
		missing++
	}
	if !in.Fields.DateFound {
		missing++
	}
	if in.Fields.Amount == nil {
		missing++
	}
	if missing > d.thresholds.MaxMissingFields {
		return []string{"missing critical information"}
	}
	return nil
}

func (d *Detector) duplicateLines(in Input) []string {
	var lines []string
	for _, line := range strings.Split(in.RawText, "\n") {
		if s := strings.ToLower(strings.Join(strings.Fields(line), " ")); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) <= d.thresholds.DuplicateMinLines {
		return nil
	}
	unique := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		unique[line] = struct{}{}
	}
	if float64(len(unique)) < d.thresholds.DuplicateLineRatio*float64(len(lines)) {
		return []string{"excessive repeated content"}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b, negative when b is earlier.
func daysBetween(a, b time.Time) int {
	return int(math.Round(startOfDay(b).Sub(startOfDay(a)).Hours() / 24))
}
