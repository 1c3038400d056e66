package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/invoice-reimbursement/internal/core/domain"
)

func TestConversationRepositoryListRecentMessagesIsChronological(t *testing.T) {
	db, mock := newMockDB(t)
	t0 := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
		AddRow("m-2", "s-1", "assistant", "Two invoices found.", t0.Add(time.Second)).
		AddRow("m-1", "s-1", "user", "Show Priya's meals", t0)

	mock.ExpectQuery("FROM conversation_messages").WithArgs("s-1", 20).WillReturnRows(rows)

	messages, err := NewConversationRepository(db).ListRecentMessages(context.Background(), "s-1", 20)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "m-1" || messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestConversationRepositoryListRecentMessagesZeroLimit(t *testing.T) {
	db, _ := newMockDB(t)
	messages, err := NewConversationRepository(db).ListRecentMessages(context.Background(), "s-1", 0)
	if err != nil || messages != nil {
		t.Fatalf("expected nil, nil; got %v, %v", messages, err)
	}
}

func TestConversationRepositoryClearSession(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM conversation_messages").
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	if err := NewConversationRepository(db).ClearSession(context.Background(), "s-1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS batches").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
