package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/events"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/messaging"
	"github.com/wolfman30/inbox-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("inbox.ai")

const defaultProviderTimeout = 45 * time.Second

// Stage names a step of the reply state machine.
type Stage string

const (
	StageGuard        Stage = "guard"
	StageSettings     Stage = "settings"
	StageConversation Stage = "conversation"
	StageHistory      Stage = "history"
	StageDelay        Stage = "delay"
	StageGenerate     Stage = "generate"
	StageDispatch     Stage = "dispatch"
	StagePersist      Stage = "persist"
)

// Outcome is the terminal state of a reply job.
type Outcome struct {
	Status JobStatus
	Stage  Stage
	Reason string
	Reply  *messages.Message
}

// ConversationReader loads a conversation scoped to an org.
type ConversationReader interface {
	Get(ctx context.Context, orgID, id string) (*conversations.Conversation, error)
}

// HistoryReader returns the last n messages of a conversation, oldest first.
type HistoryReader interface {
	Recent(ctx context.Context, conversationID string, n int) ([]messages.Message, error)
}

// ReplySender delivers and persists a reply.
type ReplySender interface {
	SendReply(ctx context.Context, reply messaging.Reply) (*messages.Message, error)
}

// Orchestrator turns a reply job into at most one delivered AI message.
type Orchestrator struct {
	settings        SettingsStore
	conversations   ConversationReader
	history         HistoryReader
	replies         ReplySender
	clients         ClientFactory
	guard           ReplyGuard
	events          events.Publisher
	metrics         *metrics.InboxMetrics
	logger          *logging.Logger
	providerTimeout time.Duration
	wait            func(ctx context.Context, d time.Duration) error
	now             func() time.Time
}

// OrchestratorOption customizes the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReplyGuard enables the at-most-once guard.
func WithReplyGuard(guard ReplyGuard) OrchestratorOption {
	return func(o *Orchestrator) { o.guard = guard }
}

// WithEventPublisher emits inbox.ai_reply.sent.v1 after each reply.
func WithEventPublisher(pub events.Publisher) OrchestratorOption {
	return func(o *Orchestrator) { o.events = pub }
}

// WithOrchestratorMetrics records job outcomes and generation latency.
func WithOrchestratorMetrics(m *metrics.InboxMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProviderTimeout bounds each LLM call.
func WithProviderTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.providerTimeout = d
		}
	}
}

// NewOrchestrator wires the reply pipeline.
func NewOrchestrator(settings SettingsStore, convs ConversationReader, history HistoryReader, replies ReplySender, clients ClientFactory, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if settings == nil {
		panic("ai: settings store cannot be nil")
	}
	if convs == nil {
		panic("ai: conversation reader cannot be nil")
	}
	if history == nil {
		panic("ai: history reader cannot be nil")
	}
	if replies == nil {
		panic("ai: reply sender cannot be nil")
	}
	if clients == nil {
		panic("ai: client factory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		settings:        settings,
		conversations:   convs,
		history:         history,
		replies:         replies,
		clients:         clients,
		logger:          logger,
		providerTimeout: defaultProviderTimeout,
		wait:            sleepContext,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleAIReply runs one job through settings, conversation, history, delay,
// generate, dispatch and persist. Skips return a nil error; a failure at any
// stage ends the job with no reply and nothing stored.
func (o *Orchestrator) HandleAIReply(ctx context.Context, job Job) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ai.reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("inbox.org_id", job.OrgID),
		attribute.String("inbox.conversation_id", job.ConversationID),
		attribute.String("inbox.job_id", job.ID),
	)
	log := o.logger.ForOrg(job.OrgID).With("conversation_id", job.ConversationID, "job_id", job.ID)

	outcome, provider, err := o.run(ctx, job, log)
	o.metrics.ObserveAIReply(string(provider), string(outcome.Status), string(outcome.Stage))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("ai reply failed", "stage", outcome.Stage, "error", err)
	case outcome.Status == JobStatusSkipped:
		log.Info("ai reply skipped", "stage", outcome.Stage, "reason", outcome.Reason)
	default:
		log.Info("ai reply sent", "message_id", outcome.Reply.ID, "provider", provider)
	}
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, job Job, log *logging.Logger) (Outcome, ProviderName, error) {
	if job.OrgID == "" || job.ConversationID == "" {
		return failed(StageConversation, ErrInvalidJob), "", ErrInvalidJob
	}

	if o.guard != nil && job.InboundMessageID != "" {
		ok, err := o.guard.Acquire(ctx, job.InboundMessageID)
		if err != nil {
			// guard outage must not silence replies
			log.Warn("reply guard unavailable, continuing", "error", err)
		} else if !ok {
			return skipped(StageGuard, "reply already attempted for inbound message"), "", nil
		}
	}

	settings, err := o.settings.Get(ctx, job.OrgID)
	if errors.Is(err, ErrSettingsNotFound) {
		return skipped(StageSettings, "ai not configured"), "", nil
	}
	if err != nil {
		return failed(StageSettings, err), "", err
	}
	cfg := settings.Normalized()
	if !cfg.Enabled {
		return skipped(StageSettings, "ai disabled for organization"), cfg.Provider, nil
	}
	if !cfg.HasCredential() {
		return skipped(StageSettings, "no api credential"), cfg.Provider, nil
	}

	conv, err := o.conversations.Get(ctx, job.OrgID, job.ConversationID)
	if err != nil {
		return failed(StageConversation, err), cfg.Provider, err
	}
	if !conv.AIEnabled {
		return skipped(StageConversation, "ai disabled for conversation"), cfg.Provider, nil
	}

	history, err := o.history.Recent(ctx, conv.ID, cfg.ContextMessagesCount)
	if err != nil {
		return failed(StageHistory, err), cfg.Provider, err
	}
	prompt := buildPrompt(history)
	if len(prompt) == 0 {
		err := errors.New("ai: conversation has no text history")
		return failed(StageHistory, err), cfg.Provider, err
	}

	if cfg.ResponseDelaySeconds > 0 {
		if err := o.wait(ctx, time.Duration(cfg.ResponseDelaySeconds)*time.Second); err != nil {
			return failed(StageDelay, err), cfg.Provider, err
		}
	}

	resp, err := o.generate(ctx, cfg, prompt)
	if err != nil {
		return failed(StageGenerate, err), cfg.Provider, err
	}

	reply, err := o.replies.SendReply(ctx, messaging.Reply{
		Conversation: conv,
		Text:         resp.Text,
		Sender:       messages.SenderAI,
		Metadata: map[string]any{
			"model":       cfg.Model,
			"provider":    string(cfg.Provider),
			"tokens_used": resp.Usage.TotalTokens,
		},
	})
	if err != nil {
		return failed(replyStage(err), err), cfg.Provider, err
	}

	o.emitReplySent(ctx, job, cfg, conv, reply, resp.Usage.TotalTokens, log)
	return Outcome{Status: JobStatusCompleted, Stage: StagePersist, Reply: reply}, cfg.Provider, nil
}

func (o *Orchestrator) generate(ctx context.Context, cfg Settings, prompt []ChatMessage) (LLMResponse, error) {
	client, release, err := o.clients.Client(ctx, cfg)
	if err != nil {
		return LLMResponse{}, err
	}
	defer release()

	genCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()
	started := time.Now()
	resp, err := client.Complete(genCtx, LLMRequest{
		Model:       cfg.Model,
		System:      cfg.SystemPrompt,
		Messages:    prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
	})
	o.metrics.ObserveAIGenerate(string(cfg.Provider), time.Since(started).Seconds())
	if err != nil {
		return LLMResponse{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return LLMResponse{}, ErrEmptyCompletion
	}
	return resp, nil
}

func (o *Orchestrator) emitReplySent(ctx context.Context, job Job, cfg Settings, conv *conversations.Conversation, reply *messages.Message, tokens int, log *logging.Logger) {
	if o.events == nil {
		return
	}
	_, err := events.Emit(ctx, o.events, "conversation:"+conv.ID, job.ID, events.AIReplySentV1{
		MessageID:         reply.ID,
		OrgID:             conv.OrgID,
		ConversationID:    conv.ID,
		InboundMessageID:  job.InboundMessageID,
		Channel:           string(conv.ChannelType),
		ExternalMessageID: reply.ExternalMessageID,
		Provider:          string(cfg.Provider),
		Model:             cfg.Model,
		TokensUsed:        tokens,
		SentAt:            o.now(),
	})
	if err != nil {
		log.Warn("failed to publish ai reply event", "error", err)
	}
}

// buildPrompt maps lead turns to user and everything else to assistant.
func buildPrompt(history []messages.Message) []ChatMessage {
	prompt := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		role := ChatRoleAssistant
		if msg.SenderType == messages.SenderLead {
			role = ChatRoleUser
		}
		prompt = append(prompt, ChatMessage{Role: role, Content: text})
	}
	return prompt
}

func replyStage(err error) Stage {
	switch {
	case errors.Is(err, channels.ErrChannelNotConnected),
		errors.Is(err, channels.ErrChannelSendFailed),
		errors.Is(err, messaging.ErrEmptyReply):
		return StageDispatch
	default:
		return StagePersist
	}
}

func skipped(stage Stage, reason string) Outcome {
	return Outcome{Status: JobStatusSkipped, Stage: stage, Reason: reason}
}

func failed(stage Stage, err error) Outcome {
	return Outcome{Status: JobStatusFailed, Stage: stage, Reason: fmt.Sprint(err)}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
