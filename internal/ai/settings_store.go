package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// SettingsStore loads an org's AI settings. Missing rows return ErrSettingsNotFound.
type SettingsStore interface {
	Get(ctx context.Context, orgID string) (*Settings, error)
}

// SQLSettingsStore reads the ai_settings table. The table is owned by the
// dashboard; this service never writes it.
type SQLSettingsStore struct {
	db *sql.DB
}

func NewSQLSettingsStore(db *sql.DB) *SQLSettingsStore {
	if db == nil {
		panic("ai: sql db required")
	}
	return &SQLSettingsStore{db: db}
}

// Get returns the settings with defaults applied to NULL columns.
func (s *SQLSettingsStore) Get(ctx context.Context, orgID string) (*Settings, error) {
	query := `
		SELECT is_enabled, provider, api_key, model, system_prompt, temperature,
			max_tokens, auto_reply_delay_seconds, context_messages_count
		FROM ai_settings
		WHERE organization_id = $1
	`
	var (
		enabled      bool
		provider     sql.NullString
		apiKey       sql.NullString
		model        sql.NullString
		systemPrompt sql.NullString
		temperature  sql.NullFloat64
		maxTokens    sql.NullInt64
		delay        sql.NullInt64
		contextCount sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&enabled, &provider, &apiKey, &model, &systemPrompt, &temperature, &maxTokens, &delay, &contextCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ai: query settings: %w", err)
	}

	settings := DefaultSettings(orgID)
	settings.Enabled = enabled
	if provider.Valid {
		settings.Provider = ProviderName(provider.String)
	}
	settings.APIKey = apiKey.String
	if model.Valid {
		settings.Model = model.String
	}
	if systemPrompt.Valid {
		settings.SystemPrompt = systemPrompt.String
	}
	if temperature.Valid {
		settings.Temperature = temperature.Float64
	}
	if maxTokens.Valid {
		settings.MaxTokens = int(maxTokens.Int64)
	}
	if delay.Valid {
		settings.ResponseDelaySeconds = int(delay.Int64)
	}
	if contextCount.Valid {
		settings.ContextMessagesCount = int(contextCount.Int64)
	}
	return &settings, nil
}

// CachedSettingsStore fronts another store with a short-lived Redis cache.
// Credentials never reach Redis: the shared entry only records whether one
// is configured, and the key itself is held in process for the same TTL.
type CachedSettingsStore struct {
	next   SettingsStore
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]localCredential
}

type localCredential struct {
	apiKey  string
	expires time.Time
}

// cachedSettings is the Redis representation; APIKey is always blank.
type cachedSettings struct {
	Settings
	HasCredential bool `json:"has_credential"`
}

func NewCachedSettingsStore(next SettingsStore, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedSettingsStore {
	if next == nil {
		panic("ai: settings store cannot be nil")
	}
	if client == nil {
		panic("ai: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedSettingsStore{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]localCredential),
	}
}

func settingsCacheKey(orgID string) string {
	return "inbox:ai_settings:" + orgID
}

func (s *CachedSettingsStore) Get(ctx context.Context, orgID string) (*Settings, error) {
	key := settingsCacheKey(orgID)
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err == nil {
		var cached cachedSettings
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			if !cached.HasCredential {
				cached.APIKey = ""
				return &cached.Settings, nil
			}
			if apiKey, ok := s.credential(orgID); ok {
				cached.APIKey = apiKey
				return &cached.Settings, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("ai settings cache read failed", "org_id", orgID, "error", err)
	}

	settings, err := s.next.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	entry := cachedSettings{Settings: *settings, HasCredential: settings.APIKey != ""}
	entry.APIKey = ""
	if data, jsonErr := json.Marshal(entry); jsonErr == nil {
		if setErr := s.redis.Set(ctx, key, data, s.ttl).Err(); setErr != nil {
			s.logger.Warn("ai settings cache write failed", "org_id", orgID, "error", setErr)
		}
	}
	s.remember(orgID, settings.APIKey)
	return settings, nil
}

func (s *CachedSettingsStore) credential(orgID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.keys[orgID]
	if !ok || !s.now().Before(c.expires) {
		delete(s.keys, orgID)
		return "", false
	}
	return c.apiKey, true
}

func (s *CachedSettingsStore) remember(orgID, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apiKey == "" {
		delete(s.keys, orgID)
		return
	}
	s.keys[orgID] = localCredential{apiKey: apiKey, expires: s.now().Add(s.ttl)}
}

// Invalidate drops the cached settings of an org.
func (s *CachedSettingsStore) Invalidate(ctx context.Context, orgID string) error {
	s.remember(orgID, "")
	return s.redis.Del(ctx, settingsCacheKey(orgID)).Err()
}

// MemorySettingsStore is an in-process SettingsStore.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{settings: make(map[string]Settings)}
}

func (s *MemorySettingsStore) Put(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.OrgID] = settings
}

func (s *MemorySettingsStore) Get(_ context.Context, orgID string) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[orgID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return &settings, nil
}
