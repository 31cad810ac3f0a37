package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// Status is the sales pipeline stage of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

// Lead is an external contact of an organization on one channel.
type Lead struct {
	ID          string               `json:"id"`
	OrgID       string               `json:"organization_id"`
	ChannelType channels.ChannelType `json:"channel_type"`
	ExternalID  string               `json:"external_id"`
	Name        string               `json:"name"`
	Username    string               `json:"username,omitempty"`
	Phone       string               `json:"phone,omitempty"`
	Status      Status               `json:"status"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Identity is what a channel tells us about the sender of a message.
// (OrgID, ChannelType, ExternalID) is the lead's unique key.
type Identity struct {
	OrgID       string
	ChannelType channels.ChannelType
	ExternalID  string
	Name        string
	Username    string
	Phone       string
	Metadata    map[string]any
}

// Validate checks the identity key.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(i.ExternalID) == "" {
		return ErrMissingIdentity
	}
	return nil
}

// profileChanges returns the non-empty profile fields that differ from the lead.
func (i Identity) profileChanges(l *Lead) (name, username, phone string, changed bool) {
	name, username, phone = l.Name, l.Username, l.Phone
	if v := strings.TrimSpace(i.Name); v != "" && v != l.Name {
		name, changed = v, true
	}
	if v := strings.TrimSpace(i.Username); v != "" && v != l.Username {
		username, changed = v, true
	}
	if v := strings.TrimSpace(i.Phone); v != "" && v != l.Phone {
		phone, changed = v, true
	}
	return name, username, phone, changed
}
