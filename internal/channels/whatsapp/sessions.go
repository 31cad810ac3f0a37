package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// StatusHook observes session status transitions.
type StatusHook func(ctx context.Context, prev, next Session)

// MessageHook receives raw inbound messages for an organization.
type MessageHook func(ctx context.Context, orgID string, raw []byte)

// SessionManager is the registry of WhatsApp sessions, one per organization.
type SessionManager struct {
	bridge Bridge
	logger *logging.Logger

	mu           sync.RWMutex
	sessions     map[string]*Session
	statusHooks  []StatusHook
	messageHooks []MessageHook
}

// NewSessionManager creates an empty registry driving the given bridge.
func NewSessionManager(bridge Bridge, logger *logging.Logger) *SessionManager {
	if bridge == nil {
		panic("whatsapp: bridge cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionManager{
		bridge:   bridge,
		logger:   logger.With("channel", string(channels.ChannelWhatsApp)),
		sessions: make(map[string]*Session),
	}
}

// OnStatusChanged registers a hook fired after every status transition.
func (m *SessionManager) OnStatusChanged(hook StatusHook) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.statusHooks = append(m.statusHooks, hook)
	m.mu.Unlock()
}

// OnMessage registers a hook fired for every delivered inbound message.
func (m *SessionManager) OnMessage(hook MessageHook) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.messageHooks = append(m.messageHooks, hook)
	m.mu.Unlock()
}

// Start starts the org's session. A ready session is returned as is.
func (m *SessionManager) Start(ctx context.Context, orgID string) (*Session, error) {
	if current, ok := m.Session(orgID); ok && current.Status == StatusReady {
		return &current, nil
	}
	session, err := m.bridge.Start(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: start session: %w", err)
	}
	m.apply(ctx, *session)
	return session, nil
}

// Stop tears down the org's session and forgets it.
func (m *SessionManager) Stop(ctx context.Context, orgID string) error {
	if err := m.bridge.Stop(ctx, orgID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("whatsapp: stop session: %w", err)
	}
	m.mu.Lock()
	prev, ok := m.sessions[orgID]
	delete(m.sessions, orgID)
	hooks := append([]StatusHook(nil), m.statusHooks...)
	m.mu.Unlock()

	before := Session{OrgID: orgID, Status: StatusDisconnected}
	if ok {
		before = *prev
	}
	m.fireStatus(ctx, hooks, before, Session{OrgID: orgID, Status: StatusDisconnected})
	return nil
}

// Session returns a copy of the registry's state for orgID.
func (m *SessionManager) Session(orgID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[orgID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Refresh pulls the current state from the bridge.
func (m *SessionManager) Refresh(ctx context.Context, orgID string) (*Session, error) {
	session, err := m.bridge.Status(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			m.apply(ctx, Session{OrgID: orgID, Status: StatusDisconnected})
			return &Session{OrgID: orgID, Status: StatusDisconnected}, nil
		}
		return nil, fmt.Errorf("whatsapp: session status: %w", err)
	}
	m.apply(ctx, *session)
	return session, nil
}

// UpdateStatus records a status reported by the bridge.
func (m *SessionManager) UpdateStatus(ctx context.Context, next Session) error {
	if !next.Status.Valid() {
		return fmt.Errorf("whatsapp: unknown status %q", next.Status)
	}
	m.apply(ctx, next)
	return nil
}

// Ready reports whether the org has a ready session. Unknown sessions
// are looked up on the bridge once, so a restarted process recovers state.
func (m *SessionManager) Ready(ctx context.Context, orgID string) bool {
	if s, ok := m.Session(orgID); ok {
		return s.Status == StatusReady
	}
	s, err := m.Refresh(ctx, orgID)
	if err != nil {
		m.logger.ForOrg(orgID).Warn("whatsapp: session lookup failed", "error", err)
		return false
	}
	return s.Status == StatusReady
}

// Send delivers text through the org's ready session.
func (m *SessionManager) Send(ctx context.Context, orgID, chatID, text string) (string, error) {
	if !m.Ready(ctx, orgID) {
		return "", fmt.Errorf("%w: whatsapp session for org %s is not ready", channels.ErrChannelNotConnected, orgID)
	}
	id, err := m.bridge.Send(ctx, orgID, chatID, text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", channels.ErrChannelSendFailed, err)
	}
	return id, nil
}

// Deliver hands a raw inbound message to the registered message hooks.
func (m *SessionManager) Deliver(ctx context.Context, orgID string, raw []byte) {
	m.mu.RLock()
	hooks := append([]MessageHook(nil), m.messageHooks...)
	m.mu.RUnlock()
	if len(hooks) == 0 {
		m.logger.ForOrg(orgID).Warn("whatsapp: inbound message dropped, no handler registered")
		return
	}
	for _, hook := range hooks {
		hook(ctx, orgID, raw)
	}
}

func (m *SessionManager) apply(ctx context.Context, next Session) {
	m.mu.Lock()
	prev := Session{OrgID: next.OrgID, Status: StatusDisconnected}
	if existing, ok := m.sessions[next.OrgID]; ok {
		prev = *existing
		if next.PhoneNumber == "" {
			next.PhoneNumber = existing.PhoneNumber
		}
		if next.PushName == "" {
			next.PushName = existing.PushName
		}
	}
	stored := next
	m.sessions[next.OrgID] = &stored
	hooks := append([]StatusHook(nil), m.statusHooks...)
	m.mu.Unlock()

	if prev.Status != next.Status {
		m.fireStatus(ctx, hooks, prev, next)
	}
}

func (m *SessionManager) fireStatus(ctx context.Context, hooks []StatusHook, prev, next Session) {
	m.logger.ForOrg(next.OrgID).Info("whatsapp session status changed", "from", prev.Status, "to", next.Status)
	for _, hook := range hooks {
		hook(ctx, prev, next)
	}
}

// ConnectionSyncHook keeps the org's messenger connection in step with the
// session: ready activates it, leaving ready deactivates it.
func ConnectionSyncHook(conns channels.ConnectionStore, logger *logging.Logger) StatusHook {
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, prev, next Session) {
		log := logger.ForOrg(next.OrgID)
		switch {
		case next.Status == StatusReady:
			err := conns.Save(ctx, &channels.Connection{
				OrganizationID: next.OrgID,
				ChannelType:    channels.ChannelWhatsApp,
				Credentials:    channels.Credentials{PhoneNumber: next.PhoneNumber, PushName: next.PushName},
				IsActive:       true,
			})
			if err != nil {
				log.Error("whatsapp: save connection failed", "error", err)
			}
		case prev.Status == StatusReady || next.Status == StatusDisconnected:
			err := conns.SetActive(ctx, next.OrgID, channels.ChannelWhatsApp, false)
			if err != nil && !errors.Is(err, channels.ErrConnectionNotFound) {
				log.Error("whatsapp: deactivate connection failed", "error", err)
			}
		}
	}
}
