package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrMissingOrgID is returned when the organization is missing
	ErrMissingOrgID = errors.New("leads: organization id is required")

	// ErrMissingIdentity is returned when the external user id is missing
	ErrMissingIdentity = errors.New("leads: external user id is required")
)
