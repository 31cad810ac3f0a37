// Package ingest turns raw channel events into stored inbox messages and
// schedules AI replies for them.
package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/inbox-ai-platform/internal/ai"
	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/events"
	"github.com/wolfman30/inbox-ai-platform/internal/leads"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("inbox.ingest")

const (
	defaultEnqueueTimeout    = 5 * time.Second
	defaultBackgroundTimeout = 30 * time.Second
)

// Outcome summarizes what happened to one inbound event.
type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// Result is returned to the webhook layer. It never carries internal errors.
type Result struct {
	Outcome        Outcome
	MessageID      string
	ConversationID string
	LeadID         string
	AIQueued       bool
}

type Normalizer interface {
	Normalize(orgID string, channel channels.ChannelType, raw []byte) (*channels.NormalizedInboundMessage, error)
}

type LeadResolver interface {
	Resolve(ctx context.Context, id leads.Identity) (*leads.Lead, error)
}

type ConversationResolver interface {
	Resolve(ctx context.Context, req conversations.ResolveRequest) (*conversations.Conversation, error)
}

type MessageStore interface {
	StoreInbound(ctx context.Context, in channels.NormalizedInboundMessage, conv *conversations.Conversation, lead *leads.Lead) (*messages.Message, bool, error)
}

// JobEnqueuer schedules an AI reply job.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job ai.Job) (ai.Job, error)
}

// RawArchiver stores the untouched payload.
type RawArchiver interface {
	ArchiveRaw(ctx context.Context, orgID, channel string, payload []byte) (string, error)
}

// ConnectionLookup returns the active connection so conversations can
// reference it.
type ConnectionLookup interface {
	Connection(ctx context.Context, orgID string, channel channels.ChannelType) (*channels.Connection, error)
}

// QuotaNotifier tells the org owner that new dialogs are being refused.
type QuotaNotifier interface {
	NotifyQuotaExceeded(ctx context.Context, evt events.QuotaExceededV1) error
}

// Pipeline runs IngestInbound.
type Pipeline struct {
	normalizer    Normalizer
	leads         LeadResolver
	conversations ConversationResolver
	messages      MessageStore
	jobs          JobEnqueuer

	archive     RawArchiver
	connections ConnectionLookup
	events      events.Publisher
	notifier    QuotaNotifier
	metrics     *metrics.InboxMetrics
	logger      *logging.Logger

	enqueueTimeout    time.Duration
	backgroundTimeout time.Duration
	background        sync.WaitGroup
}

// Option customizes the pipeline.
type Option func(*Pipeline)

func WithArchive(a RawArchiver) Option { return func(p *Pipeline) { p.archive = a } }

func WithConnections(c ConnectionLookup) Option { return func(p *Pipeline) { p.connections = c } }

func WithEvents(pub events.Publisher) Option { return func(p *Pipeline) { p.events = pub } }

func WithQuotaNotifier(n QuotaNotifier) Option { return func(p *Pipeline) { p.notifier = n } }

func WithMetrics(m *metrics.InboxMetrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithEnqueueTimeout bounds the AI job hand-off.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.enqueueTimeout = d
		}
	}
}

// NewPipeline wires the ingestion steps. jobs may be nil to disable AI replies.
func NewPipeline(normalizer Normalizer, leadResolver LeadResolver, convs ConversationResolver, store MessageStore, jobs JobEnqueuer, logger *logging.Logger, opts ...Option) *Pipeline {
	if normalizer == nil {
		panic("ingest: normalizer cannot be nil")
	}
	if leadResolver == nil {
		panic("ingest: lead resolver cannot be nil")
	}
	if convs == nil {
		panic("ingest: conversation resolver cannot be nil")
	}
	if store == nil {
		panic("ingest: message store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Pipeline{
		normalizer:        normalizer,
		leads:             leadResolver,
		conversations:     convs,
		messages:          store,
		jobs:              jobs,
		logger:            logger,
		enqueueTimeout:    defaultEnqueueTimeout,
		backgroundTimeout: defaultBackgroundTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestInbound archives, normalizes, resolves, stores and schedules a reply
// for one raw channel event. Failures after normalization are absorbed where
// possible so the channel always gets a quick answer.
func (p *Pipeline) IngestInbound(ctx context.Context, orgID string, channel channels.ChannelType, raw []byte) Result {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "ingest.inbound", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(attribute.String("inbox.org_id", orgID), attribute.String("inbox.channel", string(channel)))

	log := p.logger.ForOrg(orgID).With("channel", channel)
	res := p.ingest(ctx, orgID, channel, raw, log)

	span.SetAttributes(attribute.String("inbox.outcome", string(res.Outcome)))
	if res.Outcome == OutcomeFailed {
		span.SetStatus(codes.Error, "ingest failed")
	}
	p.metrics.ObserveIngest(string(channel), string(res.Outcome), time.Since(started).Seconds())
	return res
}

func (p *Pipeline) ingest(ctx context.Context, orgID string, channel channels.ChannelType, raw []byte, log *logging.Logger) Result {
	if p.archive != nil {
		if _, err := p.archive.ArchiveRaw(ctx, orgID, string(channel), raw); err != nil {
			log.Warn("failed to archive raw event", "error", err)
		}
	}

	in, err := p.normalizer.Normalize(orgID, channel, raw)
	switch {
	case errors.Is(err, channels.ErrIgnoredUpdate):
		log.Debug("ignoring channel update without a message")
		return Result{Outcome: OutcomeIgnored}
	case errors.Is(err, channels.ErrInvalidPayload), errors.Is(err, channels.ErrUnsupportedChannel):
		log.Warn("rejecting inbound payload", "error", err)
		return Result{Outcome: OutcomeInvalid}
	case err != nil:
		log.Error("failed to normalize inbound payload", "error", err)
		return Result{Outcome: OutcomeFailed}
	}
	log = log.With("external_chat_id", in.ExternalChatID, "external_message_id", in.ExternalMessageID)

	lead := p.resolveLead(ctx, in, log)
	conv := p.resolveConversation(ctx, in, lead, log)

	msg, created, err := p.messages.StoreInbound(ctx, *in, conv, lead)
	if err != nil {
		log.Error("failed to store inbound message", "error", err)
		return Result{Outcome: OutcomeFailed}
	}
	res := Result{Outcome: OutcomeStored, MessageID: msg.ID}
	if lead != nil {
		res.LeadID = lead.ID
	}
	if conv != nil {
		res.ConversationID = conv.ID
	}
	if !created {
		log.Info("duplicate inbound message", "message_id", msg.ID)
		res.Outcome = OutcomeDuplicate
		return res
	}

	p.publishReceived(ctx, in, msg, res, log)

	if eligibleForAI(in, conv) && p.jobs != nil {
		res.AIQueued = p.enqueue(ctx, in, conv, msg, log)
	}
	log.Info("inbound message stored", "message_id", msg.ID, "conversation_id", res.ConversationID, "ai_queued", res.AIQueued)
	return res
}

func (p *Pipeline) resolveLead(ctx context.Context, in *channels.NormalizedInboundMessage, log *logging.Logger) *leads.Lead {
	if strings.TrimSpace(in.ExternalUserID) == "" {
		return nil
	}
	lead, err := p.leads.Resolve(ctx, leads.Identity{
		OrgID:       in.OrganizationID,
		ChannelType: in.ChannelType,
		ExternalID:  in.ExternalUserID,
		Name:        in.UserFullName,
		Username:    in.UserName,
		Phone:       in.Phone,
	})
	if err != nil {
		log.Warn("lead resolution failed, continuing without lead", "error", err)
		return nil
	}
	return lead
}

func (p *Pipeline) resolveConversation(ctx context.Context, in *channels.NormalizedInboundMessage, lead *leads.Lead, log *logging.Logger) *conversations.Conversation {
	req := conversations.ResolveRequest{
		OrgID:          in.OrganizationID,
		ChannelType:    in.ChannelType,
		ExternalChatID: in.ExternalChatID,
		TitleHint:      in.TitleHint,
	}
	if lead != nil {
		req.LeadID = &lead.ID
	}
	if p.connections != nil {
		if conn, err := p.connections.Connection(ctx, in.OrganizationID, in.ChannelType); err == nil {
			req.ConnectionID = &conn.ID
		}
	}

	conv, err := p.conversations.Resolve(ctx, req)
	if err == nil {
		return conv
	}
	var quotaErr *conversations.QuotaExceededError
	if errors.As(err, &quotaErr) {
		log.Warn("dialog limit reached, storing message without conversation", "current", quotaErr.Current, "limit", quotaErr.Limit)
		p.metrics.ObserveQuotaDenied(string(in.ChannelType))
		p.quotaExceeded(ctx, in, quotaErr)
		return nil
	}
	log.Error("conversation resolution failed, storing message without conversation", "error", err)
	return nil
}

func (p *Pipeline) quotaExceeded(ctx context.Context, in *channels.NormalizedInboundMessage, quotaErr *conversations.QuotaExceededError) {
	evt := events.QuotaExceededV1{
		OrgID:          in.OrganizationID,
		Channel:        string(in.ChannelType),
		ExternalChatID: in.ExternalChatID,
		Current:        quotaErr.Current,
		Limit:          quotaErr.Limit,
		OccurredAt:     time.Now().UTC(),
	}
	if p.events != nil {
		if _, err := events.Emit(ctx, p.events, "org:"+in.OrganizationID, in.ExternalMessageID, evt); err != nil {
			p.logger.ForOrg(in.OrganizationID).Warn("failed to publish quota event", "error", err)
		}
	}
	if p.notifier == nil {
		return
	}
	p.goBackground(ctx, func(bg context.Context) {
		if err := p.notifier.NotifyQuotaExceeded(bg, evt); err != nil {
			p.logger.ForOrg(in.OrganizationID).Warn("quota notification failed", "error", err)
		}
	})
}

func (p *Pipeline) publishReceived(ctx context.Context, in *channels.NormalizedInboundMessage, msg *messages.Message, res Result, log *logging.Logger) {
	if p.events == nil {
		return
	}
	_, err := events.Emit(ctx, p.events, "message:"+msg.ID, msg.ID, events.MessageReceivedV1{
		MessageID:         msg.ID,
		OrgID:             msg.OrgID,
		ConversationID:    res.ConversationID,
		LeadID:            res.LeadID,
		Channel:           string(in.ChannelType),
		ExternalChatID:    in.ExternalChatID,
		ExternalMessageID: in.ExternalMessageID,
		MessageType:       string(in.MessageType),
		Text:              msg.Text,
		Edited:            in.Edited,
		ReceivedAt:        msg.CreatedAt,
	})
	if err != nil {
		log.Warn("failed to publish message received event", "error", err)
	}
}

// enqueue hands the job off detached from the webhook request so a client
// disconnect cannot drop it.
func (p *Pipeline) enqueue(ctx context.Context, in *channels.NormalizedInboundMessage, conv *conversations.Conversation, msg *messages.Message, log *logging.Logger) bool {
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.enqueueTimeout)
	defer cancel()
	job, err := p.jobs.Enqueue(enqueueCtx, ai.Job{
		OrgID:            conv.OrgID,
		ConversationID:   conv.ID,
		InboundMessageID: msg.ID,
		Channel:          in.ChannelType,
	})
	if err != nil {
		log.Error("failed to enqueue ai reply job", "error", err, "conversation_id", conv.ID)
		return false
	}
	log.Debug("ai reply job enqueued", "job_id", job.ID)
	return true
}

func (p *Pipeline) goBackground(ctx context.Context, fn func(context.Context)) {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.backgroundTimeout)
		defer cancel()
		fn(bg)
	}()
}

// Wait blocks until background notifications finish.
func (p *Pipeline) Wait() {
	p.background.Wait()
}

// eligibleForAI: a non-blank text message, not an edit, attached to a
// conversation. Captions and media placeholders never trigger a reply.
func eligibleForAI(in *channels.NormalizedInboundMessage, conv *conversations.Conversation) bool {
	return conv != nil && !in.Edited && in.MessageType == channels.MessageText && in.HasText() && conv.AIEnabled
}
