package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

const (
	defaultQueryLimit = 5
	maxQueryLimit     = 50

	noInvoicesAnswer = "No matching invoices were found for this question."
)

type InvoiceQueryUseCase struct {
	embedder  ports.Embedder
	index     ports.InvoiceIndex
	generator ports.AnswerGenerator
}

func NewInvoiceQueryUseCase(
	embedder ports.Embedder,
	index ports.InvoiceIndex,
	generator ports.AnswerGenerator,
) *InvoiceQueryUseCase {
	return &InvoiceQueryUseCase{
		embedder:  embedder,
		index:     index,
		generator: generator,
	}
}

func (uc *InvoiceQueryUseCase) Answer(
	ctx context.Context,
	question string,
	limit int,
	filter domain.InvoiceFilter,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("question is required"))
	}
	return uc.answer(ctx, question, nil, clampLimit(limit), filter)
}

func (uc *InvoiceQueryUseCase) answer(
	ctx context.Context,
	question string,
	history []domain.ConversationMessage,
	limit int,
	filter domain.InvoiceFilter,
) (*domain.Answer, error) {
	invoices, err := uc.retrieve(ctx, question, limit, filter)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return &domain.Answer{Text: noInvoicesAnswer, Sources: []domain.RetrievedInvoice{}, Filters: filter}, nil
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, history, invoices)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{Text: answerText, Sources: invoices, Filters: filter}, nil
}

func (uc *InvoiceQueryUseCase) retrieve(ctx context.Context, question string, limit int, filter domain.InvoiceFilter) ([]domain.RetrievedInvoice, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	invoices, err := uc.index.Search(ctx, queryVector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("search invoice index: %w", err)
	}
	return invoices, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultQueryLimit
	case limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return limit
	}
}
