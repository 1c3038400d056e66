// Package extract pulls structured invoice fields out of noisy PDF text using
// ordered pattern lists. Nothing here performs I/O or returns errors.
package extract

import (
	"strings"
	"time"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

type Options struct {
	MinAmount float64
	MaxAmount float64
	Now       func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MinAmount: 10,
		MaxAmount: domain.MaxPlausibleAmount,
		Now:       time.Now,
	}
}

type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.MinAmount <= 0 {
		opts.MinAmount = def.MinAmount
	}
	if opts.MaxAmount <= 0 || opts.MaxAmount < opts.MinAmount {
		opts.MaxAmount = def.MaxAmount
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Extractor{opts: opts}
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// NormalizeText converts CRLF and lone CR line breaks to LF and drops NUL
// bytes. The line-anchored patterns in this package expect LF.
func NormalizeText(text string) string {
	if !strings.ContainsAny(text, "\r\x00") {
		return text
	}
	return lineBreaks.Replace(text)
}

// Fields extracts name, amount and dates. On an internal failure it returns
// sentinel values instead of propagating.
func (e *Extractor) Fields(text, filename string) (fields domain.ExtractedFields) {
	now := e.opts.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			fields = domain.NewExtractedFields("", nil, now, false, nil, nil)
		}
	}()

	text = NormalizeText(text)
	name := EmployeeName(text, filename)
	amount := e.Amount(text)
	dates := findDates(text)

	invoiceDate := now
	dateFound := false
	switch {
	case dates.reporting != nil:
		invoiceDate, dateFound = *dates.reporting, true
	case dates.general != nil:
		invoiceDate, dateFound = *dates.general, true
	}

	return domain.NewExtractedFields(name, amount, invoiceDate, dateFound, dates.reporting, dates.dropping)
}
