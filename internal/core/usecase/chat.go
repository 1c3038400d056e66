package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
	"github.com/kirillkom/invoice-reimbursement/internal/core/ports"
)

type ChatOptions struct {
	HistoryLimit int
	ContextTurns int
	TopK         int
}

type ChatUseCase struct {
	query         *InvoiceQueryUseCase
	conversations ports.ConversationStore
	opts          ChatOptions
	now           func() time.Time
}

func NewChatUseCase(query *InvoiceQueryUseCase, conversations ports.ConversationStore, opts ChatOptions) *ChatUseCase {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = 5
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultQueryLimit
	}
	return &ChatUseCase{
		query:         query,
		conversations: conversations,
		opts:          opts,
		now:           time.Now,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, sessionID, message string) (*domain.Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("message is required"))
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := uc.conversations.ListRecentMessages(ctx, sessionID, uc.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	if turns := uc.opts.ContextTurns * 2; len(history) > turns {
		history = history[len(history)-turns:]
	}

	filter := ExtractFilters(message)
	answer, err := uc.query.answer(ctx, message, history, uc.opts.TopK, filter)
	if err != nil {
		return nil, err
	}
	answer.SessionID = sessionID

	if err := uc.appendMessage(ctx, sessionID, domain.RoleUser, message); err != nil {
		return nil, err
	}
	if err := uc.appendMessage(ctx, sessionID, domain.RoleAssistant, answer.Text); err != nil {
		return nil, err
	}
	return answer, nil
}

func (uc *ChatUseCase) Reset(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reset chat", fmt.Errorf("session id is required"))
	}
	if err := uc.conversations.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

func (uc *ChatUseCase) appendMessage(ctx context.Context, sessionID string, role domain.MessageRole, content string) error {
	err := uc.conversations.AppendMessage(ctx, domain.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: uc.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}
