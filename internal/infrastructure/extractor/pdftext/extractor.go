package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const defaultTimeout = 15 * time.Second

// Extractor turns PDF bytes into plain text. Every failure, including a
// decoder panic or a timeout, yields an empty string.
type Extractor struct {
	timeout  time.Duration
	maxPages int
}

func NewExtractor(timeout time.Duration, maxPages int) *Extractor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Extractor{timeout: timeout, maxPages: maxPages}
}

type extraction struct {
	text string
	err  error
}

func (e *Extractor) ExtractText(ctx context.Context, content []byte) string {
	if len(content) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// The decoder takes no context, so it runs on its own goroutine and is
	// abandoned on timeout.
	done := make(chan extraction, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extraction{err: fmt.Errorf("pdf decoder panic: %v", r)}
			}
		}()
		text, err := e.decode(content)
		done <- extraction{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("pdf_extract_timeout", "bytes", len(content), "error", ctx.Err().Error())
		return ""
	case res := <-done:
		if res.err != nil {
			slog.Warn("pdf_extract_failed", "bytes", len(content), "error", res.err.Error())
			return ""
		}
		return res.text
	}
}

func (e *Extractor) decode(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	if e.maxPages > 0 && pages > e.maxPages {
		pages = e.maxPages
	}
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// pageText prefers row order, which keeps label/value pairs on one line, and
// falls back to the content stream order.
func pageText(page pdf.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var b strings.Builder
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				b.WriteString(strings.Join(words, " "))
				b.WriteString("\n")
			}
		}
		return b.String(), nil
	}
	return page.GetPlainText(nil)
}
