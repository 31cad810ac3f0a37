package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Adapter translates between a messenger channel and the inbox.
type Adapter interface {
	Type() ChannelType
	// Normalize decodes a raw channel event. Events without a message
	// return ErrIgnoredUpdate.
	Normalize(orgID string, raw []byte) (*NormalizedInboundMessage, error)
	// Sender returns a handle bound to the organization's connection.
	Sender(ctx context.Context, conn *Connection) (Sender, error)
}

// Sender delivers text to an external chat and returns the channel's message id.
type Sender interface {
	Send(ctx context.Context, externalChatID, text string) (string, error)
}

// Registry holds channel adapters and resolves per-organization senders.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
	conns    ConnectionStore
}

// NewRegistry creates an empty registry backed by the connection store.
func NewRegistry(conns ConnectionStore) *Registry {
	if conns == nil {
		panic("channels: connection store cannot be nil")
	}
	return &Registry{
		adapters: map[ChannelType]Adapter{},
		conns:    conns,
	}
}

// Register adds an adapter. Registering a channel twice is an error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("channels: adapter is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[adapter.Type()]; exists {
		return fmt.Errorf("channels: channel type already registered: %s", adapter.Type())
	}
	r.adapters[adapter.Type()] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for a channel.
func (r *Registry) Get(channel ChannelType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
	return adapter, nil
}

// Normalize decodes a raw event with the channel's adapter.
func (r *Registry) Normalize(orgID string, channel ChannelType, raw []byte) (*NormalizedInboundMessage, error) {
	adapter, err := r.Get(channel)
	if err != nil {
		return nil, err
	}
	return adapter.Normalize(orgID, raw)
}

// Connection returns the active connection for (org, channel).
func (r *Registry) Connection(ctx context.Context, orgID string, channel ChannelType) (*Connection, error) {
	conn, err := r.conns.Active(ctx, orgID, channel)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			return nil, fmt.Errorf("%w: %s for org %s", ErrChannelNotConnected, channel, orgID)
		}
		return nil, err
	}
	return conn, nil
}

// Sender resolves a sender for the organization's active connection.
func (r *Registry) Sender(ctx context.Context, orgID string, channel ChannelType) (Sender, error) {
	adapter, err := r.Get(channel)
	if err != nil {
		return nil, err
	}
	conn, err := r.Connection(ctx, orgID, channel)
	if err != nil {
		return nil, err
	}
	return adapter.Sender(ctx, conn)
}
