package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrOwnerNotFound is returned when an org has no owner contact on file.
var ErrOwnerNotFound = errors.New("notify: organization owner not found")

// OrgContact is where operator notifications for an org are delivered.
type OrgContact struct {
	OrgID      string
	OrgName    string
	OwnerEmail string
	OwnerName  string
}

// OrgDirectory looks up the owner contact of an organization.
type OrgDirectory interface {
	Owner(ctx context.Context, orgID string) (*OrgContact, error)
}

// SQLDirectory reads owner contacts from the organizations table.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	if db == nil {
		panic("notify: sql db required")
	}
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) Owner(ctx context.Context, orgID string) (*OrgContact, error) {
	var (
		name       string
		ownerEmail sql.NullString
		ownerName  sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT name, owner_email, owner_name FROM organizations WHERE id = $1`, orgID,
	).Scan(&name, &ownerEmail, &ownerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notify: query organization: %w", err)
	}
	if strings.TrimSpace(ownerEmail.String) == "" {
		return nil, ErrOwnerNotFound
	}
	return &OrgContact{OrgID: orgID, OrgName: name, OwnerEmail: ownerEmail.String, OwnerName: ownerName.String}, nil
}
