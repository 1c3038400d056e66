package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

// dedupSet lives for exactly one batch.
type dedupSet struct {
	mu       sync.Mutex
	contents map[string]string
	invoices map[string]string
}

func newDedupSet() *dedupSet {
	return &dedupSet{
		contents: make(map[string]string),
		invoices: make(map[string]string),
	}
}

// claimContent returns the filename that first claimed hash, if any.
func (s *dedupSet) claimContent(hash, filename string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first, ok := s.contents[hash]; ok {
		return first, true
	}
	s.contents[hash] = filename
	return "", false
}

// claimInvoice returns the invoice id that first claimed key, if any.
func (s *dedupSet) claimInvoice(key, invoiceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first, ok := s.invoices[key]; ok {
		return first, true
	}
	s.invoices[key] = invoiceID
	return "", false
}

// invoiceKey is only defined when the name and the amount were really extracted.
func invoiceKey(fields domain.ExtractedFields, amountFound bool) (string, bool) {
	if !fields.HasName() || !amountFound || fields.Amount == nil {
		return "", false
	}
	return fmt.Sprintf("%s|%.2f|%s",
		strings.ToLower(fields.EmployeeName),
		*fields.Amount,
		domain.FormatDate(fields.InvoiceDate),
	), true
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// invoiceID is stable for the same file content so repeated recording stays idempotent.
func invoiceID(filename, hash string) string {
	slug := invoiceSlug(filename)
	if len(hash) > 12 {
		hash = hash[:12]
	}
	if slug == "" {
		return "inv-" + hash
	}
	return slug + "-" + hash
}

func invoiceSlug(filename string) string {
	base := strings.ToLower(filepath.Base(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	lastDash := true
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug
}
