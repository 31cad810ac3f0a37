package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	"github.com/wolfman30/inbox-ai-platform/internal/events"
	"github.com/wolfman30/inbox-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// Infra holds the process-wide connections shared by the API and the worker.
type Infra struct {
	Pool     *pgxpool.Pool
	DB       *sql.DB
	Redis    *redis.Client
	AWS      aws.Config
	AMQP     *amqp091.Connection
	Registry *prometheus.Registry
	Metrics  *metrics.InboxMetrics
}

// Connect dials every configured backend. Postgres is required; Redis and
// AMQP are optional.
func Connect(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Infra, error) {
	if logger == nil {
		logger = logging.Default()
	}
	pool, db, err := OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	infra := &Infra{Pool: pool, DB: db}

	infra.AWS, err = LoadAWSConfig(ctx, cfg)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	infra.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if cfg.AMQPURL != "" {
		infra.AMQP, err = events.DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPDialAttempts, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("bootstrap: dial amqp: %w", err)
		}
	}

	infra.Registry = prometheus.NewRegistry()
	infra.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	infra.Metrics = metrics.NewInboxMetrics(infra.Registry)
	return infra, nil
}

// Close releases every connection.
func (i *Infra) Close() {
	if i.AMQP != nil {
		_ = i.AMQP.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		_ = i.DB.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}
