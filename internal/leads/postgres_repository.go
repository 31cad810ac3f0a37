package leads

import (
	"context"
	"encoding/json"
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

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const leadColumns = `id, organization_id, channel_type, external_id, name, username, phone, status, metadata, created_at, updated_at`

// FindByIdentity looks a lead up by its unique key.
func (r *PostgresRepository) FindByIdentity(ctx context.Context, orgID string, channel channels.ChannelType, externalID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE organization_id = $1 AND channel_type = $2 AND external_id = $3`
	return scanLead(r.db.QueryRow(ctx, query, orgID, string(channel), externalID))
}

// GetByID fetches a lead scoped to the org.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE id = $1 AND organization_id = $2`
	return scanLead(r.db.QueryRow(ctx, query, id, orgID))
}

// Insert creates the lead; a concurrent insert of the same identity wins silently.
func (r *PostgresRepository) Insert(ctx context.Context, lead *Lead) (bool, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(lead.Metadata)
	if err != nil {
		return false, fmt.Errorf("leads: encode metadata: %w", err)
	}
	query := `
		INSERT INTO leads (id, organization_id, channel_type, external_id, name, username, phone, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, channel_type, external_id) DO NOTHING
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		lead.ID,
		lead.OrgID,
		string(lead.ChannelType),
		lead.ExternalID,
		lead.Name,
		lead.Username,
		lead.Phone,
		string(lead.Status),
		metadata,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("leads: insert failed: %w", err)
	}
	return true, nil
}

// UpdateProfile refreshes the display fields of a lead.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, username, phone string) error {
	query := `
		UPDATE leads
		SET name = $2, username = $3, phone = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, name, username, phone)
	if err != nil {
		return fmt.Errorf("leads: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead     Lead
		channel  string
		status   string
		metadata []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&channel,
		&lead.ExternalID,
		&lead.Name,
		&lead.Username,
		&lead.Phone,
		&status,
		&metadata,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: scan lead: %w", err)
	}
	lead.ChannelType = channels.ChannelType(channel)
	lead.Status = Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &lead.Metadata); err != nil {
			return nil, fmt.Errorf("leads: decode metadata: %w", err)
		}
	}
	return &lead, nil
}
