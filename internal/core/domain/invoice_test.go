package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestNewExtractedFieldsAppliesSentinelAndAmountRange(t *testing.T) {
	cases := []struct {
		name       string
		inName     string
		amount     *float64
		wantName   string
		wantAmount *float64
	}{
		{name: "empty name", inName: "  ", amount: floatPtr(500), wantName: UnknownEmployee, wantAmount: floatPtr(500)},
		{name: "zero amount", inName: "Ramesh", amount: floatPtr(0), wantName: "Ramesh"},
		{name: "too large", inName: "Ramesh", amount: floatPtr(250000), wantName: "Ramesh"},
		{name: "upper bound", inName: "Ramesh", amount: floatPtr(100000), wantName: "Ramesh", wantAmount: floatPtr(100000)},
		{name: "nil amount", inName: "Ramesh", wantName: "Ramesh"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewExtractedFields(tc.inName, tc.amount, time.Now(), true, nil, nil)
			if got.EmployeeName != tc.wantName {
				t.Fatalf("name = %q, want %q", got.EmployeeName, tc.wantName)
			}
			switch {
			case tc.wantAmount == nil && got.Amount != nil:
				t.Fatalf("amount = %v, want nil", *got.Amount)
			case tc.wantAmount != nil && (got.Amount == nil || *got.Amount != *tc.wantAmount):
				t.Fatalf("amount = %v, want %v", got.Amount, *tc.wantAmount)
			}
		})
	}
}

func TestNewExtractedFieldsCopiesAmount(t *testing.T) {
	amount := 120.0
	fields := NewExtractedFields("Ramesh", &amount, time.Now(), true, nil, nil)
	amount = 999
	if *fields.Amount != 120 {
		t.Fatalf("expected amount copy to stay 120, got %v", *fields.Amount)
	}
}

func TestNewFraudVerdictCapsConfidence(t *testing.T) {
	verdict := NewFraudVerdict([]string{"a", "b", "c", "d"}, 0.3)
	if !verdict.IsFraud {
		t.Fatalf("expected fraud")
	}
	if verdict.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", verdict.Confidence)
	}
	if verdict.Reason != "a | b | c | d" {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}

	clean := NewFraudVerdict(nil, 0.3)
	if clean.IsFraud || clean.Confidence != 0 || clean.Reason != "" {
		t.Fatalf("expected clean verdict, got %+v", clean)
	}
}

func TestTruncateTextAddsEllipsis(t *testing.T) {
	long := strings.Repeat("₹", InvoiceTextLimit+10)
	got := TruncateText(long, InvoiceTextLimit)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != InvoiceTextLimit {
		t.Fatalf("expected %d runes, got %d", InvoiceTextLimit, n)
	}
	if TruncateText("short", InvoiceTextLimit) != "short" {
		t.Fatalf("short text must not be truncated")
	}
}

func TestInvoiceRecordJSONShape(t *testing.T) {
	reporting := time.Date(2024, 8, 17, 0, 0, 0, 0, time.UTC)
	record := NewInvoiceRecord(RecordInput{
		InvoiceID: "bus-ticket-1a2b3c4d",
		Document:  RawDocument{Filename: "bus_ticket.pdf", ArchiveName: "travel.zip"},
		Category:  CategoryTravel,
		Fields:    NewExtractedFields("Ramesh", floatPtr(2100), reporting, true, &reporting, nil),
		Policy: PolicyVerdict{
			Status:             StatusPartiallyReimbursed,
			Reason:             "over limit",
			ReimbursableAmount: 2000,
		},
		Text:  "Total Fare ₹ 2100",
		Stage: StageRecorded,
	})

	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload["invoice_date"] != "2024-08-17" {
		t.Fatalf("invoice_date = %v", payload["invoice_date"])
	}
	if payload["reporting_date"] != "2024-08-17" {
		t.Fatalf("reporting_date = %v", payload["reporting_date"])
	}
	if v, ok := payload["dropping_date"]; !ok || v != nil {
		t.Fatalf("dropping_date must be present and null, got %v", v)
	}
	if payload["reimbursement_status"] != "Partially Reimbursed" || payload["invoice_type"] != "travel" {
		t.Fatalf("unexpected payload %v", payload)
	}

	var back InvoiceRecord
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal record error = %v", err)
	}
	if back.Fields.ReportingDate == nil || !back.Fields.ReportingDate.Equal(reporting) {
		t.Fatalf("reporting date lost: %v", back.Fields.ReportingDate)
	}
	if back.Policy.Status != StatusPartiallyReimbursed || back.Amount() != 2100 {
		t.Fatalf("unexpected round-tripped record %+v", back)
	}
}

func TestParseReimbursementStatus(t *testing.T) {
	cases := map[string]ReimbursementStatus{
		"Fully Reimbursed":     StatusFullyReimbursed,
		"partially_reimbursed": StatusPartiallyReimbursed,
		"DECLINED":             StatusDeclined,
	}
	for raw, want := range cases {
		got, ok := ParseReimbursementStatus(raw)
		if !ok || got != want {
			t.Fatalf("ParseReimbursementStatus(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseReimbursementStatus("maybe"); ok {
		t.Fatalf("expected unknown status to be rejected")
	}
}
