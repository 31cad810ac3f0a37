package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const defaultSendTimeout = 10 * time.Second

// ErrEmptyReply is returned for blank outbound text.
var ErrEmptyReply = errors.New("messaging: reply text is empty")

// SenderResolver returns a sender bound to the org's active channel connection.
type SenderResolver interface {
	Sender(ctx context.Context, orgID string, channel channels.ChannelType) (channels.Sender, error)
}

// OutboundRecorder persists a delivered reply.
type OutboundRecorder interface {
	StoreOutbound(ctx context.Context, rec messages.OutboundRecord) (*messages.Message, error)
}

// Reply is an operator or AI reply to a conversation.
type Reply struct {
	Conversation *conversations.Conversation
	Text         string
	Sender       messages.SenderType
	Metadata     map[string]any
}

// Dispatcher is the single outbound path: every reply is sent through the
// originating channel and persisted only after the channel accepted it.
type Dispatcher struct {
	senders     SenderResolver
	store       OutboundRecorder
	metrics     *metrics.InboxMetrics
	logger      *logging.Logger
	sendTimeout time.Duration
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendTimeout bounds each channel send.
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.sendTimeout = d
		}
	}
}

// WithMetrics records send outcomes.
func WithMetrics(m *metrics.InboxMetrics) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// NewDispatcher creates the outbound dispatcher.
func NewDispatcher(senders SenderResolver, store OutboundRecorder, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if senders == nil {
		panic("messaging: sender resolver cannot be nil")
	}
	if store == nil {
		panic("messaging: outbound recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		senders:     senders,
		store:       store,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends text to the conversation's external chat and returns the
// channel message id. Errors match channels.ErrChannelNotConnected or
// channels.ErrChannelSendFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *conversations.Conversation, text string) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("messaging: dispatch requires a conversation")
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	sender, err := d.senders.Sender(ctx, conv.OrgID, conv.ChannelType)
	if err != nil {
		if errors.Is(err, channels.ErrChannelNotConnected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", channels.ErrChannelNotConnected, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	externalID, err := sender.Send(sendCtx, conv.ExternalChatID, text)
	if err != nil {
		if errors.Is(err, channels.ErrChannelSendFailed) || errors.Is(err, channels.ErrChannelNotConnected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", channels.ErrChannelSendFailed, err)
	}
	return externalID, nil
}

// SendReply dispatches the reply and persists it on success. Nothing is
// stored when the channel send fails.
func (d *Dispatcher) SendReply(ctx context.Context, reply Reply) (*messages.Message, error) {
	conv := reply.Conversation
	if conv == nil {
		return nil, fmt.Errorf("messaging: reply requires a conversation")
	}
	log := d.logger.ForOrg(conv.OrgID).With("conversation_id", conv.ID, "sender", reply.Sender)

	externalID, err := d.Dispatch(ctx, conv, reply.Text)
	if err != nil {
		d.metrics.ObserveDispatch(string(conv.ChannelType), string(reply.Sender), "failed")
		log.Warn("outbound send failed", "error", err)
		return nil, err
	}
	d.metrics.ObserveDispatch(string(conv.ChannelType), string(reply.Sender), "sent")

	msg, err := d.store.StoreOutbound(ctx, messages.OutboundRecord{
		Conversation:      conv,
		Text:              reply.Text,
		Sender:            reply.Sender,
		ExternalMessageID: externalID,
		Metadata:          reply.Metadata,
	})
	if err != nil {
		log.Error("reply sent but not persisted", "external_message_id", externalID, "error", err)
		return nil, fmt.Errorf("messaging: persist reply: %w", err)
	}
	log.Info("reply sent", "message_id", msg.ID, "external_message_id", externalID)
	return msg, nil
}
