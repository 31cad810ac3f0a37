package channels

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresConnectionStoreActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresConnectionStore(mock)
	now := time.Now()
	mock.ExpectQuery("SELECT id, organization_id, channel_type, credentials").
		WithArgs("org-1", "telegram").
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "channel_type", "credentials", "is_active", "created_at", "updated_at"}).
			AddRow("conn-1", "org-1", "telegram", []byte(`{"bot_token":"123:abc","webhook_secret":"s3cret"}`), true, now, now))

	conn, err := store.Active(context.Background(), "org-1", ChannelTelegram)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if conn.Credentials.BotToken != "123:abc" || conn.Credentials.WebhookSecret != "s3cret" {
		t.Fatalf("unexpected credentials: %+v", conn.Credentials)
	}
	if conn.ChannelType != ChannelTelegram {
		t.Fatalf("expected telegram channel, got %s", conn.ChannelType)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresConnectionStoreActiveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresConnectionStore(mock)
	mock.ExpectQuery("SELECT id, organization_id, channel_type, credentials").
		WithArgs("org-1", "whatsapp").
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "channel_type", "credentials", "is_active", "created_at", "updated_at"}))

	if _, err := store.Active(context.Background(), "org-1", ChannelWhatsApp); err != ErrConnectionNotFound {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestPostgresConnectionStoreSetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresConnectionStore(mock)
	mock.ExpectExec("UPDATE messenger_connections").
		WithArgs("org-1", "whatsapp", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.SetActive(context.Background(), "org-1", ChannelWhatsApp, false); err != ErrConnectionNotFound {
		t.Fatalf("expected ErrConnectionNotFound for missing row, got %v", err)
	}
}

func TestMemoryConnectionStoreMergesCredentials(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	if err := store.Save(ctx, &Connection{OrganizationID: "org-1", ChannelType: ChannelWhatsApp, Credentials: Credentials{PhoneNumber: "79990001122"}, IsActive: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, &Connection{OrganizationID: "org-1", ChannelType: ChannelWhatsApp, Credentials: Credentials{PushName: "Shop"}, IsActive: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	conn, err := store.Active(ctx, "org-1", ChannelWhatsApp)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if conn.Credentials.PhoneNumber != "79990001122" || conn.Credentials.PushName != "Shop" {
		t.Fatalf("expected merged credentials, got %+v", conn.Credentials)
	}
}
