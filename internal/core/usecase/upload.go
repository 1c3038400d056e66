package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

// expandUpload turns the invoices upload into documents. ZIP archives are
// unpacked, a single PDF or text file becomes one document.
func expandUpload(archives ports.ArchiveReader, file ports.UploadedFile) ([]domain.RawDocument, error) {
	name := strings.TrimSpace(file.Filename)
	if name == "" || len(file.Content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "expand upload", fmt.Errorf("invoices file is empty"))
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		if archives == nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "expand upload", fmt.Errorf("archive uploads are not supported"))
		}
		docs, err := archives.Expand(name, file.Content)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "expand archive", err)
		}
		return docs, nil
	case ".pdf", ".txt":
		return []domain.RawDocument{{Filename: filepath.Base(name), Content: file.Content}}, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "expand upload", fmt.Errorf("unsupported invoices file %q", name))
	}
}

// readPolicyText returns the policy as plain text. It may be empty when the
// PDF cannot be decoded.
func readPolicyText(ctx context.Context, pdf ports.PDFTextExtractor, decode func([]byte) string, file ports.UploadedFile) (string, error) {
	switch strings.ToLower(filepath.Ext(file.Filename)) {
	case ".pdf":
		if pdf == nil {
			return "", nil
		}
		return pdf.ExtractText(ctx, file.Content), nil
	case ".txt", ".md", "":
		return decode(file.Content), nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "read policy", fmt.Errorf("unsupported policy file %q", file.Filename))
	}
}

func validateUploads(policy, invoices ports.UploadedFile) error {
	if strings.TrimSpace(policy.Filename) == "" && len(policy.Content) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("policy file is required"))
	}
	if strings.TrimSpace(invoices.Filename) == "" || len(invoices.Content) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("invoices file is required"))
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "upload.bin"
	}
	return base
}
