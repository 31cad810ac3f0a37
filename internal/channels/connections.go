package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConnectionStore persists messenger connections, one per (org, channel).
type ConnectionStore interface {
	Active(ctx context.Context, orgID string, channel ChannelType) (*Connection, error)
	Save(ctx context.Context, conn *Connection) error
	SetActive(ctx context.Context, orgID string, channel ChannelType, active bool) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConnectionStore stores connections in messenger_connections.
type PostgresConnectionStore struct {
	db querier
}

// NewPostgresConnectionStore builds a store over a pgx pool.
func NewPostgresConnectionStore(db querier) *PostgresConnectionStore {
	if db == nil {
		panic("channels: pgx pool required")
	}
	return &PostgresConnectionStore{db: db}
}

// Active returns the active connection or ErrConnectionNotFound.
func (s *PostgresConnectionStore) Active(ctx context.Context, orgID string, channel ChannelType) (*Connection, error) {
	query := `
		SELECT id, organization_id, channel_type, credentials, is_active, created_at, updated_at
		FROM messenger_connections
		WHERE organization_id = $1 AND channel_type = $2 AND is_active = true
	`
	var (
		conn  Connection
		ctype string
		creds []byte
	)
	err := s.db.QueryRow(ctx, query, orgID, string(channel)).Scan(
		&conn.ID, &conn.OrganizationID, &ctype, &creds, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("channels: load connection: %w", err)
	}
	conn.ChannelType = ChannelType(ctype)
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &conn.Credentials); err != nil {
			return nil, fmt.Errorf("channels: decode credentials: %w", err)
		}
	}
	return &conn, nil
}

// Save upserts the connection keyed by (organization, channel).
func (s *PostgresConnectionStore) Save(ctx context.Context, conn *Connection) error {
	if conn == nil {
		return errors.New("channels: connection required")
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	creds, err := json.Marshal(conn.Credentials)
	if err != nil {
		return fmt.Errorf("channels: encode credentials: %w", err)
	}
	query := `
		INSERT INTO messenger_connections (id, organization_id, channel_type, credentials, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, channel_type)
		DO UPDATE SET credentials = messenger_connections.credentials || EXCLUDED.credentials,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, conn.ID, conn.OrganizationID, string(conn.ChannelType), creds, conn.IsActive); err != nil {
		return fmt.Errorf("channels: save connection: %w", err)
	}
	return nil
}

// SetActive flips is_active for an existing connection.
func (s *PostgresConnectionStore) SetActive(ctx context.Context, orgID string, channel ChannelType, active bool) error {
	query := `
		UPDATE messenger_connections
		SET is_active = $3, updated_at = now()
		WHERE organization_id = $1 AND channel_type = $2
	`
	tag, err := s.db.Exec(ctx, query, orgID, string(channel), active)
	if err != nil {
		return fmt.Errorf("channels: update connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// MemoryConnectionStore is an in-process ConnectionStore.
type MemoryConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewMemoryConnectionStore returns an empty store.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{conns: make(map[string]*Connection)}
}

func connectionKey(orgID string, channel ChannelType) string {
	return strings.TrimSpace(orgID) + "|" + string(channel)
}

func (s *MemoryConnectionStore) Active(_ context.Context, orgID string, channel ChannelType) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[connectionKey(orgID, channel)]
	if !ok || !conn.IsActive {
		return nil, ErrConnectionNotFound
	}
	clone := *conn
	return &clone, nil
}

func (s *MemoryConnectionStore) Save(_ context.Context, conn *Connection) error {
	if conn == nil {
		return errors.New("channels: connection required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connectionKey(conn.OrganizationID, conn.ChannelType)
	now := time.Now().UTC()
	if existing, ok := s.conns[key]; ok {
		existing.Credentials = mergeCredentials(existing.Credentials, conn.Credentials)
		existing.IsActive = conn.IsActive
		existing.UpdatedAt = now
		conn.ID = existing.ID
		return nil
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	clone := *conn
	clone.CreatedAt, clone.UpdatedAt = now, now
	s.conns[key] = &clone
	return nil
}

func (s *MemoryConnectionStore) SetActive(_ context.Context, orgID string, channel ChannelType, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionKey(orgID, channel)]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.IsActive = active
	conn.UpdatedAt = time.Now().UTC()
	return nil
}

func mergeCredentials(base, update Credentials) Credentials {
	if update.BotToken != "" {
		base.BotToken = update.BotToken
	}
	if update.WebhookSecret != "" {
		base.WebhookSecret = update.WebhookSecret
	}
	if update.PhoneNumber != "" {
		base.PhoneNumber = update.PhoneNumber
	}
	if update.PushName != "" {
		base.PushName = update.PushName
	}
	return base
}
