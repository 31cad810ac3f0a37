package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores messages in Postgres. Uniqueness is enforced by
// two partial indexes: (conversation_id, external_message_id) and, for
// orphaned rows, (organization_id, channel_type, external_chat_id, external_message_id).
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("messages: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const messageColumns = `id, organization_id, conversation_id, channel_type, external_chat_id, lead_id, sender_type,
	text, message_type, attachments, metadata, external_message_id, status, is_ai_generated, created_at`

func (r *PostgresRepository) Insert(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return false, fmt.Errorf("messages: encode attachments: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return false, fmt.Errorf("messages: encode metadata: %w", err)
	}
	query := `
		INSERT INTO messages (id, organization_id, conversation_id, channel_type, external_chat_id, lead_id,
			sender_type, text, message_type, attachments, metadata, external_message_id, status, is_ai_generated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	var id string
	err = r.db.QueryRow(ctx, query,
		msg.ID,
		msg.OrgID,
		msg.ConversationID,
		string(msg.ChannelType),
		msg.ExternalChatID,
		msg.LeadID,
		string(msg.SenderType),
		msg.Text,
		string(msg.MessageType),
		attachments,
		metadata,
		nullableString(msg.ExternalMessageID),
		string(msg.Status),
		msg.IsAIGenerated,
		msg.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("messages: insert failed: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) FindByDedupKey(ctx context.Context, key DedupKey) (*Message, error) {
	if key.ConversationID != nil {
		query := `SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1 AND external_message_id = $2`
		return scanMessage(r.db.QueryRow(ctx, query, *key.ConversationID, key.ExternalMessageID))
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id IS NULL AND organization_id = $1 AND channel_type = $2
			AND external_chat_id = $3 AND external_message_id = $4`
	return scanMessage(r.db.QueryRow(ctx, query, key.OrgID, string(key.ChannelType), key.ExternalChatID, key.ExternalMessageID))
}

func (r *PostgresRepository) Get(ctx context.Context, orgID, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND organization_id = $2`
	return scanMessage(r.db.QueryRow(ctx, query, id, orgID))
}

func (r *PostgresRepository) Recent(ctx context.Context, conversationID string, n int) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("messages: query recent: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages: iterate recent: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		msg         Message
		channel     string
		sender      string
		msgType     string
		status      string
		externalID  *string
		attachments []byte
		metadata    []byte
	)
	if err := row.Scan(
		&msg.ID,
		&msg.OrgID,
		&msg.ConversationID,
		&channel,
		&msg.ExternalChatID,
		&msg.LeadID,
		&sender,
		&msg.Text,
		&msgType,
		&attachments,
		&metadata,
		&externalID,
		&status,
		&msg.IsAIGenerated,
		&msg.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("messages: scan message: %w", err)
	}
	msg.ChannelType = channels.ChannelType(channel)
	msg.SenderType = SenderType(sender)
	msg.MessageType = channels.MessageType(msgType)
	msg.Status = Status(status)
	if externalID != nil {
		msg.ExternalMessageID = *externalID
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("messages: decode attachments: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("messages: decode metadata: %w", err)
		}
	}
	return &msg, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
