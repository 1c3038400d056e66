package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	UnknownEmployee = "Unknown Employee"

	MinPlausibleAmount = 1
	MaxPlausibleAmount = 100000

	InvoiceTextLimit = 500

	isoDate = "2006-01-02"
)

type Category string

const (
	CategoryMeal    Category = "meal"
	CategoryTravel  Category = "travel"
	CategoryCab     Category = "cab"
	CategoryGeneral Category = "general"
)

func ParseCategory(raw string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryMeal:
		return CategoryMeal, true
	case CategoryTravel:
		return CategoryTravel, true
	case CategoryCab:
		return CategoryCab, true
	case CategoryGeneral:
		return CategoryGeneral, true
	default:
		return "", false
	}
}

type ReimbursementStatus string

const (
	StatusFullyReimbursed     ReimbursementStatus = "Fully Reimbursed"
	StatusPartiallyReimbursed ReimbursementStatus = "Partially Reimbursed"
	StatusDeclined            ReimbursementStatus = "Declined"
)

func ParseReimbursementStatus(raw string) (ReimbursementStatus, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", " ")), " "))
	switch normalized {
	case "fully reimbursed", "fully", "full":
		return StatusFullyReimbursed, true
	case "partially reimbursed", "partially", "partial":
		return StatusPartiallyReimbursed, true
	case "declined", "rejected":
		return StatusDeclined, true
	default:
		return "", false
	}
}

// RawDocument is a single uploaded file, possibly unpacked from an archive.
type RawDocument struct {
	Filename    string
	ArchiveName string
	Content     []byte
}

type LineItem struct {
	Quantity  int     `json:"quantity"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// Details holds best-effort category-specific extras. Absent values stay empty.
type Details struct {
	Boarding       string     `json:"boarding,omitempty"`
	Destination    string     `json:"destination,omitempty"`
	SeatNumber     string     `json:"seat_number,omitempty"`
	Restaurant     string     `json:"restaurant,omitempty"`
	Items          []LineItem `json:"items,omitempty"`
	PickupAddress  string     `json:"pickup_address,omitempty"`
	RideFee        *float64   `json:"ride_fee,omitempty"`
	DropoffAddress string     `json:"dropoff_address,omitempty"`
}

func (d Details) IsZero() bool {
	return d.Boarding == "" && d.Destination == "" && d.SeatNumber == "" &&
		d.Restaurant == "" && len(d.Items) == 0 &&
		d.PickupAddress == "" && d.RideFee == nil && d.DropoffAddress == ""
}

type ExtractedFields struct {
	EmployeeName  string
	Amount        *float64
	InvoiceDate   time.Time
	DateFound     bool
	ReportingDate *time.Time
	DroppingDate  *time.Time
	Details       Details
}

// NewExtractedFields normalizes raw extraction output: an empty name becomes
// the sentinel and an implausible amount becomes nil.
func NewExtractedFields(
	name string,
	amount *float64,
	invoiceDate time.Time,
	dateFound bool,
	reporting, dropping *time.Time,
) ExtractedFields {
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnknownEmployee
	}
	if amount != nil && !plausibleAmount(*amount) {
		amount = nil
	}
	if amount != nil {
		v := *amount
		amount = &v
	}
	return ExtractedFields{
		EmployeeName:  name,
		Amount:        amount,
		InvoiceDate:   truncateDay(invoiceDate),
		DateFound:     dateFound,
		ReportingDate: cloneDay(reporting),
		DroppingDate:  cloneDay(dropping),
	}
}

func (f ExtractedFields) HasName() bool {
	return f.EmployeeName != "" && f.EmployeeName != UnknownEmployee
}

func plausibleAmount(v float64) bool {
	return !math.IsNaN(v) && v >= MinPlausibleAmount && v <= MaxPlausibleAmount
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := truncateDay(*t)
	return &v
}

// FraudVerdict is derived once from the fired indicators.
type FraudVerdict struct {
	IsFraud    bool     `json:"is_fraud"`
	Reason     string   `json:"reason"`
	Indicators []string `json:"indicators"`
	Confidence float64  `json:"confidence"`
}

const fraudReasonSeparator = " | "

func NewFraudVerdict(indicators []string, confidenceStep float64) FraudVerdict {
	fired := make([]string, 0, len(indicators))
	for _, indicator := range indicators {
		if s := strings.TrimSpace(indicator); s != "" {
			fired = append(fired, s)
		}
	}
	confidence := math.Min(confidenceStep*float64(len(fired)), 1.0)
	if confidence < 0 {
		confidence = 0
	}
	return FraudVerdict{
		IsFraud:    len(fired) > 0,
		Reason:     strings.Join(fired, fraudReasonSeparator),
		Indicators: fired,
		Confidence: confidence,
	}
}

type PolicyVerdict struct {
	Status             ReimbursementStatus `json:"status"`
	Reason             string              `json:"reason"`
	ReimbursableAmount float64             `json:"reimbursable_amount"`
	EligibleAmount     float64             `json:"eligible_amount"`
	Limit              float64             `json:"limit,omitempty"`
}

// ProcessingStage tracks how far a document got through the pipeline.
type ProcessingStage string

const (
	StageReceived        ProcessingStage = "received"
	StageClassified      ProcessingStage = "classified"
	StageFieldsExtracted ProcessingStage = "fields_extracted"
	StageFraudChecked    ProcessingStage = "fraud_checked"
	StageDeclined        ProcessingStage = "declined"
	StagePolicyDecided   ProcessingStage = "policy_decided"
	StageRecorded        ProcessingStage = "recorded"
)

// InvoiceRecord is the immutable outcome of processing one document.
type InvoiceRecord struct {
	InvoiceID       string
	BatchID         string
	Filename        string
	SourceArchive   string
	Category        Category
	Fields          ExtractedFields
	AmountEstimated bool
	Fraud           FraudVerdict
	Policy          PolicyVerdict
	InvoiceText     string
	Stage           ProcessingStage
	Error           string
	ProcessedAt     time.Time
}

type RecordInput struct {
	InvoiceID       string
	BatchID         string
	Document        RawDocument
	Category        Category
	Fields          ExtractedFields
	AmountEstimated bool
	Fraud           FraudVerdict
	Policy          PolicyVerdict
	Text            string
	Stage           ProcessingStage
	Error           string
	ProcessedAt     time.Time
}

func NewInvoiceRecord(in RecordInput) InvoiceRecord {
	fields := in.Fields
	if strings.TrimSpace(fields.EmployeeName) == "" {
		fields.EmployeeName = UnknownEmployee
	}
	category := in.Category
	if category == "" {
		category = CategoryGeneral
	}
	processedAt := in.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	if fields.InvoiceDate.IsZero() {
		fields.InvoiceDate = truncateDay(processedAt)
	}
	return InvoiceRecord{
		InvoiceID:       in.InvoiceID,
		BatchID:         in.BatchID,
		Filename:        in.Document.Filename,
		SourceArchive:   in.Document.ArchiveName,
		Category:        category,
		Fields:          fields,
		AmountEstimated: in.AmountEstimated,
		Fraud:           in.Fraud,
		Policy:          in.Policy,
		InvoiceText:     TruncateText(in.Text, InvoiceTextLimit),
		Stage:           in.Stage,
		Error:           in.Error,
		ProcessedAt:     processedAt,
	}
}

// Amount returns the recorded amount, zero when nothing was extracted or substituted.
func (r InvoiceRecord) Amount() float64 {
	if r.Fields.Amount == nil {
		return 0
	}
	return *r.Fields.Amount
}

func TruncateText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

type invoiceRecordJSON struct {
	InvoiceID           string              `json:"invoice_id"`
	BatchID             string              `json:"batch_id,omitempty"`
	Filename            string              `json:"filename"`
	SourceArchive       string              `json:"source_archive,omitempty"`
	EmployeeName        string              `json:"employee_name"`
	InvoiceDate         string              `json:"invoice_date"`
	Amount              *float64            `json:"amount"`
	AmountEstimated     bool                `json:"amount_estimated"`
	InvoiceType         Category            `json:"invoice_type"`
	ReimbursementStatus ReimbursementStatus `json:"reimbursement_status"`
	ReimbursableAmount  float64             `json:"reimbursable_amount"`
	Reason              string              `json:"reason"`
	FraudDetected       bool                `json:"fraud_detected"`
	FraudReason         string              `json:"fraud_reason"`
	FraudIndicators     []string            `json:"fraud_indicators,omitempty"`
	FraudConfidence     float64             `json:"fraud_confidence"`
	InvoiceText         string              `json:"invoice_text"`
	ReportingDate       *string             `json:"reporting_date"`
	DroppingDate        *string             `json:"dropping_date"`
	Details             *Details            `json:"details,omitempty"`
	Stage               ProcessingStage     `json:"stage,omitempty"`
	Error               string              `json:"error,omitempty"`
	ProcessedAt         time.Time           `json:"processed_at"`
}

func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	out := invoiceRecordJSON{
		InvoiceID:           r.InvoiceID,
		BatchID:             r.BatchID,
		Filename:            r.Filename,
		SourceArchive:       r.SourceArchive,
		EmployeeName:        r.Fields.EmployeeName,
		InvoiceDate:         FormatDate(r.Fields.InvoiceDate),
		Amount:              r.Fields.Amount,
		AmountEstimated:     r.AmountEstimated,
		InvoiceType:         r.Category,
		ReimbursementStatus: r.Policy.Status,
		ReimbursableAmount:  r.Policy.ReimbursableAmount,
		Reason:              r.Policy.Reason,
		FraudDetected:       r.Fraud.IsFraud,
		FraudReason:         r.Fraud.Reason,
		FraudIndicators:     r.Fraud.Indicators,
		FraudConfidence:     r.Fraud.Confidence,
		InvoiceText:         r.InvoiceText,
		ReportingDate:       formatOptionalDate(r.Fields.ReportingDate),
		DroppingDate:        formatOptionalDate(r.Fields.DroppingDate),
		Stage:               r.Stage,
		Error:               r.Error,
		ProcessedAt:         r.ProcessedAt,
	}
	if !r.Fields.Details.IsZero() {
		details := r.Fields.Details
		out.Details = &details
	}
	return json.Marshal(out)
}

func (r *InvoiceRecord) UnmarshalJSON(data []byte) error {
	var in invoiceRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	invoiceDate, _ := ParseDate(in.InvoiceDate)
	fields := ExtractedFields{
		EmployeeName:  in.EmployeeName,
		Amount:        in.Amount,
		InvoiceDate:   invoiceDate,
		DateFound:     !invoiceDate.IsZero(),
		ReportingDate: parseOptionalDate(in.ReportingDate),
		DroppingDate:  parseOptionalDate(in.DroppingDate),
	}
	if in.Details != nil {
		fields.Details = *in.Details
	}
	*r = InvoiceRecord{
		InvoiceID:       in.InvoiceID,
		BatchID:         in.BatchID,
		Filename:        in.Filename,
		SourceArchive:   in.SourceArchive,
		Category:        in.InvoiceType,
		Fields:          fields,
		AmountEstimated: in.AmountEstimated,
		Fraud: FraudVerdict{
			IsFraud:    in.FraudDetected,
			Reason:     in.FraudReason,
			Indicators: in.FraudIndicators,
			Confidence: in.FraudConfidence,
		},
		Policy: PolicyVerdict{
			Status:             in.ReimbursementStatus,
			Reason:             in.Reason,
			ReimbursableAmount: in.ReimbursableAmount,
		},
		InvoiceText: in.InvoiceText,
		Stage:       in.Stage,
		Error:       in.Error,
		ProcessedAt: in.ProcessedAt,
	}
	return nil
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoDate)
}

func ParseDate(raw string) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDate, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := FormatDate(*t)
	return &s
}

func parseOptionalDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, ok := ParseDate(*raw)
	if !ok {
		return nil
	}
	return &t
}
