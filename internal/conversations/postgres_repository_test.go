package conversations

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

var conversationCols = []string{
	"id", "organization_id", "channel_type", "external_chat_id", "lead_id", "messenger_connection_id",
	"title", "status", "ai_enabled", "unread_count", "last_message_at", "last_message_preview", "created_at", "updated_at",
}

func TestPostgresRepositoryFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now()
	lead := "lead-1"
	mock.ExpectQuery("FROM conversations").
		WithArgs("org-1", "telegram", "100").
		WillReturnRows(pgxmock.NewRows(conversationCols).
			AddRow("conv-1", "org-1", "telegram", "100", &lead, (*string)(nil), "@ann", "open", true, 3, &now, "hello", now, now))

	conv, err := repo.Find(context.Background(), "org-1", channels.ChannelTelegram, "100")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if conv.ID != "conv-1" || conv.LeadID == nil || *conv.LeadID != "lead-1" || conv.UnreadCount != 3 || !conv.AIEnabled {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	mock.ExpectQuery("FROM conversations").
		WithArgs("org-1", "telegram", "404").
		WillReturnRows(pgxmock.NewRows(conversationCols))
	if _, err := repo.Find(context.Background(), "org-1", channels.ChannelTelegram, "404"); err != ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestPostgresRepositoryInsertConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}))

	created, err := repo.Insert(context.Background(), &Conversation{OrgID: "org-1", ChannelType: channels.ChannelTelegram, ExternalChatID: "100", Status: StatusOpen, AIEnabled: true})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created {
		t.Fatal("expected created=false on conflict")
	}
}

func TestPostgresRepositoryUpdateSummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	at := time.Now()
	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-1", at, "hello", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-missing", at, "hello", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdateSummary(context.Background(), "conv-1", SummaryUpdate{LastMessageAt: at, Preview: "hello", IncrementUnread: true}); err != nil {
		t.Fatalf("update summary: %v", err)
	}
	if err := repo.UpdateSummary(context.Background(), "conv-missing", SummaryUpdate{LastMessageAt: at, Preview: "hello"}); err != ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryCountConversations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.CountConversations(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
}
