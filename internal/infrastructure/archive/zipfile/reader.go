package zipfile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

const (
	defaultMaxEntryBytes = 32 << 20
	defaultMaxEntries    = 500
)

// Reader unpacks invoice archives held in memory. Only PDF entries are kept.
type Reader struct {
	maxEntryBytes int64
	maxEntries    int
}

func NewReader(maxEntryBytes int64, maxEntries int) *Reader {
	if maxEntryBytes <= 0 {
		maxEntryBytes = defaultMaxEntryBytes
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Reader{maxEntryBytes: maxEntryBytes, maxEntries: maxEntries}
}

func (r *Reader) Expand(archiveName string, content []byte) ([]domain.RawDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("zip: open archive %q: %w", archiveName, err)
	}

	docs := make([]domain.RawDocument, 0, len(zr.File))
	for _, f := range zr.File {
		if !keepEntry(f) {
			continue
		}
		if len(docs) == r.maxEntries {
			return nil, fmt.Errorf("zip: archive %q has more than %d documents", archiveName, r.maxEntries)
		}
		data, err := r.readEntry(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.RawDocument{
			Filename:    path.Base(f.Name),
			ArchiveName: archiveName,
			Content:     data,
		})
	}
	slog.Info("archive_expanded", "archive", archiveName, "entries", len(zr.File), "documents", len(docs))
	return docs, nil
}

func keepEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, "._") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(path.Ext(base), ".pdf")
}

// readEntry reads at most maxEntryBytes; the declared size is not trusted.
func (r *Reader) readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("zip: open entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("zip: read entry %q: %w", f.Name, err)
	}
	if int64(len(data)) > r.maxEntryBytes {
		return nil, fmt.Errorf("zip: entry %q exceeds %d bytes", f.Name, r.maxEntryBytes)
	}
	return data, nil
}
