package bootstrap

import (
	"database/sql"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	"github.com/wolfman30/inbox-ai-platform/internal/notify"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// BuildQuotaNotifier returns the owner notification service, or nil when
// quota notifications are disabled or no database is available.
func BuildQuotaNotifier(cfg *appconfig.Config, db *sql.DB, redisClient *redis.Client, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	if cfg == nil || !cfg.QuotaNotifyEnabled || db == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	var throttle notify.Throttle = notify.NewMemoryThrottle()
	if redisClient != nil {
		throttle = notify.NewRedisThrottle(redisClient)
	}
	svc := notify.NewService(buildEmailSender(cfg, awsCfg, logger), notify.NewSQLDirectory(db), throttle, logger)
	if cfg.QuotaNotifyInterval > 0 {
		svc.SetQuotaWindow(cfg.QuotaNotifyInterval)
	}
	return svc
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		if cfg.SESFromEmail != "" {
			logger.Info("quota notifications via ses")
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
		}
	case "sendgrid", "":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			logger.Info("quota notifications via sendgrid")
			return sender
		}
	}
	logger.Warn("no email provider configured; quota notifications are logged only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}
