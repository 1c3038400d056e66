package domain

// InvoiceFilter narrows listing, export and semantic search. Zero values mean "any".
type InvoiceFilter struct {
	EmployeeName  string              `json:"employee_name,omitempty"`
	Status        ReimbursementStatus `json:"status,omitempty"`
	Category      Category            `json:"invoice_type,omitempty"`
	FraudDetected *bool               `json:"fraud_detected,omitempty"`
	BatchID       string              `json:"batch_id,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
}

func (f InvoiceFilter) IsEmpty() bool {
	return f.EmployeeName == "" && f.Status == "" && f.Category == "" && f.FraudDetected == nil && f.BatchID == ""
}

type RetrievedInvoice struct {
	Record InvoiceRecord `json:"record"`
	Score  float64       `json:"score"`
}

type Answer struct {
	SessionID string             `json:"session_id,omitempty"`
	Text      string             `json:"text"`
	Sources   []RetrievedInvoice `json:"sources"`
	Filters   InvoiceFilter      `json:"filters"`
}
