package conversations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores conversations in Postgres.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("conversations: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const conversationColumns = `id, organization_id, channel_type, external_chat_id, lead_id, messenger_connection_id,
	title, status, ai_enabled, unread_count, last_message_at, last_message_preview, created_at, updated_at`

func (r *PostgresRepository) Find(ctx context.Context, orgID string, channel channels.ChannelType, externalChatID string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE organization_id = $1 AND channel_type = $2 AND external_chat_id = $3`
	return scanConversation(r.db.QueryRow(ctx, query, orgID, string(channel), externalChatID))
}

func (r *PostgresRepository) Get(ctx context.Context, orgID, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND organization_id = $2`
	return scanConversation(r.db.QueryRow(ctx, query, id, orgID))
}

func (r *PostgresRepository) Insert(ctx context.Context, conv *Conversation) (bool, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	query := `
		INSERT INTO conversations (id, organization_id, channel_type, external_chat_id, lead_id,
			messenger_connection_id, title, status, ai_enabled, unread_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		ON CONFLICT (organization_id, channel_type, external_chat_id) DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		conv.ID,
		conv.OrgID,
		string(conv.ChannelType),
		conv.ExternalChatID,
		conv.LeadID,
		conv.ConnectionID,
		conv.Title,
		string(conv.Status),
		conv.AIEnabled,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversations: insert failed: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) AttachLead(ctx context.Context, id, leadID string) error {
	query := `
		UPDATE conversations
		SET lead_id = $2, updated_at = now()
		WHERE id = $1 AND lead_id IS NULL
	`
	if _, err := r.db.Exec(ctx, query, id, leadID); err != nil {
		return fmt.Errorf("conversations: attach lead: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetAIEnabled(ctx context.Context, orgID, id string, enabled bool) (*Conversation, error) {
	query := `
		UPDATE conversations
		SET ai_enabled = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRow(ctx, query, id, orgID, enabled))
}

// UpdateSummary applies the unread change atomically in SQL.
func (r *PostgresRepository) UpdateSummary(ctx context.Context, id string, update SummaryUpdate) error {
	query := `
		UPDATE conversations
		SET last_message_at = $2,
			last_message_preview = $3,
			unread_count = CASE WHEN $4 THEN unread_count + 1 ELSE 0 END,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, update.LastMessageAt, update.Preview, update.IncrementUnread)
	if err != nil {
		return fmt.Errorf("conversations: update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkRead(ctx context.Context, orgID, id string) error {
	query := `
		UPDATE conversations
		SET unread_count = 0, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	tag, err := r.db.Exec(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("conversations: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// CountConversations counts every conversation of the org regardless of status.
func (r *PostgresRepository) CountConversations(ctx context.Context, orgID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE organization_id = $1`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("conversations: count: %w", err)
	}
	return n, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv    Conversation
		channel string
		status  string
	)
	if err := row.Scan(
		&conv.ID,
		&conv.OrgID,
		&channel,
		&conv.ExternalChatID,
		&conv.LeadID,
		&conv.ConnectionID,
		&conv.Title,
		&status,
		&conv.AIEnabled,
		&conv.UnreadCount,
		&conv.LastMessageAt,
		&conv.LastMessagePreview,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: scan conversation: %w", err)
	}
	conv.ChannelType = channels.ChannelType(channel)
	conv.Status = Status(status)
	return &conv, nil
}
