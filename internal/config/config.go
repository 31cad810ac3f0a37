package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backends for AI reply jobs.
const (
	QueueBackendMemory = "memory"
	QueueBackendSQS    = "sqs"
	QueueBackendAMQP   = "amqp"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// AI reply job queue
	AIQueueBackend    string
	AIQueueURL        string
	AIQueueBuffer     int
	AIWorkerCount     int
	AIJobsTable       string
	AIProviderTimeout time.Duration
	AIJobTimeout      time.Duration
	AIReplyGuardTTL   time.Duration
	AISettingsTTL     time.Duration
	OpenAIBaseURL     string
	BedrockModelID    string

	// RabbitMQ (events and optional AI queue)
	AMQPURL          string
	AMQPExchange     string
	AMQPAIQueue      string
	AMQPDialAttempts int

	// Channels
	ChannelSendTimeout    time.Duration
	TelegramAPIEndpoint   string
	WhatsAppBridgeURL     string
	WhatsAppBridgeSecret  string
	WhatsAppBridgeTimeout time.Duration

	FreeTierDialogLimit int
	DashboardJWTSecret  string
	RawEventsBucket     string
	CORSAllowedOrigins  []string
	WebhookRatePerSec   float64
	WebhookRateBurst    int

	// Quota notification email
	QuotaNotifyEnabled  bool
	QuotaNotifyInterval time.Duration
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AIQueueBackend:    strings.ToLower(strings.TrimSpace(getEnv("AI_QUEUE_BACKEND", QueueBackendMemory))),
		AIQueueURL:        getEnv("AI_QUEUE_URL", ""),
		AIQueueBuffer:     getEnvAsInt("AI_QUEUE_BUFFER", 256),
		AIWorkerCount:     getEnvAsInt("AI_WORKER_COUNT", 4),
		AIJobsTable:       getEnv("AI_JOBS_TABLE", ""),
		AIProviderTimeout: getEnvAsDuration("AI_PROVIDER_TIMEOUT", 45*time.Second),
		AIJobTimeout:      getEnvAsDuration("AI_JOB_TIMEOUT", 2*time.Minute),
		AIReplyGuardTTL:   getEnvAsDuration("AI_REPLY_GUARD_TTL", 24*time.Hour),
		AISettingsTTL:     getEnvAsDuration("AI_SETTINGS_CACHE_TTL", time.Minute),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "inbox.events"),
		AMQPAIQueue:      getEnv("AMQP_AI_QUEUE", "inbox.ai_replies"),
		AMQPDialAttempts: getEnvAsInt("AMQP_DIAL_ATTEMPTS", 5),

		ChannelSendTimeout:    getEnvAsDuration("CHANNEL_SEND_TIMEOUT", 10*time.Second),
		TelegramAPIEndpoint:   getEnv("TELEGRAM_API_ENDPOINT", ""),
		WhatsAppBridgeURL:     strings.TrimRight(getEnv("WHATSAPP_BRIDGE_URL", ""), "/"),
		WhatsAppBridgeSecret:  getEnv("WHATSAPP_BRIDGE_SECRET", ""),
		WhatsAppBridgeTimeout: getEnvAsDuration("WHATSAPP_BRIDGE_TIMEOUT", 15*time.Second),

		FreeTierDialogLimit: getEnvAsInt("FREE_TIER_DIALOG_LIMIT", 50),
		DashboardJWTSecret:  getEnv("DASHBOARD_JWT_SECRET", ""),
		RawEventsBucket:     getEnv("RAW_EVENTS_BUCKET", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRatePerSec:   getEnvAsFloat("WEBHOOK_RATE_PER_SEC", 20),
		WebhookRateBurst:    getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		QuotaNotifyEnabled:  getEnvAsBool("QUOTA_NOTIFY_ENABLED", false),
		QuotaNotifyInterval: getEnvAsDuration("QUOTA_NOTIFY_INTERVAL", 24*time.Hour),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Inbox AI"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
