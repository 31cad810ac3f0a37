package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/inbox-ai-platform/internal/ai"
	"github.com/wolfman30/inbox-ai-platform/internal/archive"
	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/telegram"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/events"
	"github.com/wolfman30/inbox-ai-platform/internal/ingest"
	"github.com/wolfman30/inbox-ai-platform/internal/leads"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/messaging"
	"github.com/wolfman30/inbox-ai-platform/internal/quota"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// Inbox is the assembled messaging core.
type Inbox struct {
	Connections   channels.ConnectionStore
	Channels      *channels.Registry
	Telegram      *telegram.Adapter
	Sessions      *whatsapp.SessionManager
	Conversations *conversations.Service
	Messages      *messages.Store
	Dispatcher    *messaging.Dispatcher
	Settings      ai.SettingsStore
	Queue         ai.Queue
	Jobs          *ai.JobStore
	Publisher     *ai.Publisher
	Orchestrator  *ai.Orchestrator
	Pipeline      *ingest.Pipeline
	Events        events.Publisher
}

// BuildInbox wires repositories, channels, the AI pipeline and ingestion on
// top of infra.
func BuildInbox(ctx context.Context, cfg *appconfig.Config, infra *Infra, logger *logging.Logger) (*Inbox, error) {
	if cfg == nil || infra == nil {
		return nil, fmt.Errorf("bootstrap: config and infra are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	in := &Inbox{}

	in.Connections = channels.NewPostgresConnectionStore(infra.Pool)
	in.Channels = channels.NewRegistry(in.Connections)
	var tgOpts []telegram.Option
	if cfg.TelegramAPIEndpoint != "" {
		tgOpts = append(tgOpts, telegram.WithAPIEndpoint(cfg.TelegramAPIEndpoint))
	}
	in.Telegram = telegram.NewAdapter(logger, tgOpts...)
	in.Channels.MustRegister(in.Telegram)
	if cfg.WhatsAppBridgeURL != "" {
		bridge := whatsapp.NewBridgeClient(cfg.WhatsAppBridgeURL, cfg.WhatsAppBridgeSecret, cfg.WhatsAppBridgeTimeout)
		in.Sessions = whatsapp.NewSessionManager(bridge, logger)
		in.Sessions.OnStatusChanged(whatsapp.ConnectionSyncHook(in.Connections, logger))
		in.Channels.MustRegister(whatsapp.NewAdapter(in.Sessions))
	} else {
		logger.Warn("WHATSAPP_BRIDGE_URL not set; whatsapp channel disabled")
	}

	convRepo := conversations.NewPostgresRepository(infra.Pool)
	guard := quota.NewGuard(quota.NewSQLSubscriptionStore(infra.DB), convRepo, cfg.FreeTierDialogLimit)
	in.Conversations = conversations.NewService(convRepo, guard, logger)
	leadResolver := leads.NewResolver(leads.NewPostgresRepository(infra.Pool), logger)
	in.Messages = messages.NewStore(messages.NewPostgresRepository(infra.Pool), convRepo, logger)
	in.Dispatcher = messaging.NewDispatcher(in.Channels, in.Messages, logger,
		messaging.WithSendTimeout(cfg.ChannelSendTimeout),
		messaging.WithMetrics(infra.Metrics),
	)

	in.Events = events.NopPublisher{}
	if infra.AMQP != nil {
		pub, err := events.NewAMQPPublisher(infra.AMQP, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: amqp event publisher: %w", err)
		}
		in.Events = pub
	}

	if err := in.buildAI(cfg, infra, logger); err != nil {
		return nil, err
	}

	opts := []ingest.Option{
		ingest.WithConnections(in.Channels),
		ingest.WithEvents(in.Events),
		ingest.WithMetrics(infra.Metrics),
	}
	if cfg.RawEventsBucket != "" {
		opts = append(opts, ingest.WithArchive(archive.NewStore(s3.NewFromConfig(infra.AWS), cfg.RawEventsBucket, logger)))
	}
	if notifier := BuildQuotaNotifier(cfg, infra.DB, infra.Redis, infra.AWS, logger); notifier != nil {
		opts = append(opts, ingest.WithQuotaNotifier(notifier))
	}
	in.Pipeline = ingest.NewPipeline(in.Channels, leadResolver, in.Conversations, in.Messages, in.Publisher, logger, opts...)
	if in.Sessions != nil {
		in.Sessions.OnMessage(func(ctx context.Context, orgID string, raw []byte) {
			in.Pipeline.IngestInbound(ctx, orgID, channels.ChannelWhatsApp, raw)
		})
	}
	return in, nil
}

func (in *Inbox) buildAI(cfg *appconfig.Config, infra *Infra, logger *logging.Logger) error {
	var settings ai.SettingsStore = ai.NewSQLSettingsStore(infra.DB)
	var guard ai.ReplyGuard = ai.NewMemoryReplyGuard(cfg.AIReplyGuardTTL)
	if infra.Redis != nil {
		settings = ai.NewCachedSettingsStore(settings, infra.Redis, cfg.AISettingsTTL, logger)
		guard = ai.NewRedisReplyGuard(infra.Redis, cfg.AIReplyGuardTTL)
	}
	in.Settings = settings

	queue, err := BuildAIQueue(cfg, infra.AWS, infra.AMQP)
	if err != nil {
		return err
	}
	in.Queue = queue
	if cfg.AIJobsTable != "" {
		in.Jobs = ai.NewJobStore(dynamodb.NewFromConfig(infra.AWS), cfg.AIJobsTable, logger)
		in.Publisher = ai.NewPublisher(queue, in.Jobs, logger)
	} else {
		in.Publisher = ai.NewPublisher(queue, nil, logger)
	}

	factory := &ai.ProviderFactory{
		OpenAIBaseURL:  cfg.OpenAIBaseURL,
		AWSConfig:      infra.AWS,
		BedrockModelID: cfg.BedrockModelID,
	}
	in.Orchestrator = ai.NewOrchestrator(settings, in.Conversations, in.Messages, in.Dispatcher, factory, logger,
		ai.WithReplyGuard(guard),
		ai.WithEventPublisher(in.Events),
		ai.WithOrchestratorMetrics(infra.Metrics),
		ai.WithProviderTimeout(cfg.AIProviderTimeout),
	)
	return nil
}

// NewWorker returns a reply worker consuming the inbox queue.
func (in *Inbox) NewWorker(cfg *appconfig.Config, logger *logging.Logger) *ai.Worker {
	opts := []ai.WorkerOption{
		ai.WithWorkerCount(cfg.AIWorkerCount),
		ai.WithJobTimeout(cfg.AIJobTimeout),
	}
	if in.Jobs != nil {
		opts = append(opts, ai.WithJobUpdater(in.Jobs))
	}
	return ai.NewWorker(in.Orchestrator, in.Queue, logger, opts...)
}

// DrainFailures logs every failed reply job until the channel closes or ctx
// is done.
func DrainFailures(ctx context.Context, failures <-chan ai.JobFailure, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-failures:
			if !ok {
				return
			}
			logger.ForOrg(f.Job.OrgID).Error("ai reply failed",
				"job_id", f.Job.ID,
				"conversation_id", f.Job.ConversationID,
				"stage", f.Stage,
				"error", f.Err,
			)
		}
	}
}
