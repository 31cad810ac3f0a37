package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// BotInfo describes the bot behind a token.
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Connect validates a bot token, registers the webhook with a fresh secret
// and returns the connection to persist.
func (a *Adapter) Connect(ctx context.Context, orgID, botToken, webhookURL string) (*channels.Connection, *BotInfo, error) {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" {
		return nil, nil, fmt.Errorf("telegram: bot token required")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	bot := a.bot(botToken)
	me, err := bot.GetMe()
	if err != nil {
		a.forget(botToken)
		return nil, nil, fmt.Errorf("telegram: invalid bot token: %w", err)
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return nil, nil, err
	}
	// secret_token is newer than the library's WebhookConfig.
	if _, err := bot.MakeRequest("setWebhook", tgbotapi.Params{
		"url":             webhookURL,
		"secret_token":    secret,
		"allowed_updates": `["message","edited_message"]`,
	}); err != nil {
		return nil, nil, fmt.Errorf("telegram: set webhook: %w", err)
	}

	a.logger.ForOrg(orgID).Info("telegram webhook registered", "bot_username", me.UserName)
	conn := &channels.Connection{
		OrganizationID: orgID,
		ChannelType:    channels.ChannelTelegram,
		Credentials: channels.Credentials{
			BotToken:      botToken,
			WebhookSecret: secret,
		},
		IsActive: true,
	}
	info := &BotInfo{ID: me.ID, Username: me.UserName, Name: joinName(me.FirstName, me.LastName)}
	return conn, info, nil
}

func (a *Adapter) forget(token string) {
	a.mu.Lock()
	delete(a.bots, token)
	a.mu.Unlock()
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("telegram: generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
