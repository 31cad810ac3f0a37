// Package telegram adapts the Telegram Bot API to the inbox channel model.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const defaultHTTPTimeout = 10 * time.Second

var tracer = otel.Tracer("inbox.channels.telegram")

// Adapter implements channels.Adapter for Telegram bots.
type Adapter struct {
	endpoint   string
	httpClient *http.Client
	logger     *logging.Logger

	mu   sync.RWMutex
	bots map[string]*tgbotapi.BotAPI // keyed by bot token
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithAPIEndpoint overrides the Bot API endpoint format (tgbotapi.APIEndpoint).
func WithAPIEndpoint(endpoint string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(endpoint) != "" {
			a.endpoint = endpoint
		}
	}
}

// WithHTTPClient overrides the HTTP client used for Bot API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// NewAdapter creates a Telegram adapter.
func NewAdapter(logger *logging.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Adapter{
		endpoint:   tgbotapi.APIEndpoint,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.With("channel", string(channels.ChannelTelegram)),
		bots:       make(map[string]*tgbotapi.BotAPI),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type returns the Telegram channel type.
func (a *Adapter) Type() channels.ChannelType {
	return channels.ChannelTelegram
}

// bot returns a cached client for the token. Construction does not call getMe.
func (a *Adapter) bot(token string) *tgbotapi.BotAPI {
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot
	}
	bot = &tgbotapi.BotAPI{Token: token, Client: a.httpClient, Buffer: 100}
	bot.SetAPIEndpoint(a.endpoint)
	a.bots[token] = bot
	return bot
}

// Sender returns a sender bound to the connection's bot token.
func (a *Adapter) Sender(_ context.Context, conn *channels.Connection) (channels.Sender, error) {
	if conn == nil || strings.TrimSpace(conn.Credentials.BotToken) == "" {
		return nil, fmt.Errorf("%w: telegram bot token missing", channels.ErrChannelNotConnected)
	}
	return &sender{bot: a.bot(conn.Credentials.BotToken), logger: a.logger.ForOrg(conn.OrganizationID)}, nil
}

type sender struct {
	bot    *tgbotapi.BotAPI
	logger *logging.Logger
}

// Send delivers a text message and returns the Telegram message id.
func (s *sender) Send(ctx context.Context, externalChatID, text string) (string, error) {
	_, span := tracer.Start(ctx, "telegram.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("telegram.chat_id", externalChatID))

	chatID, err := strconv.ParseInt(strings.TrimSpace(externalChatID), 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat id %q: %w", externalChatID, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sent, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("telegram: send failed", "chat_id", externalChatID, "error", err)
		return "", fmt.Errorf("%w: telegram: %v", channels.ErrChannelSendFailed, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Normalize decodes a Telegram update into the channel-neutral shape.
func (a *Adapter) Normalize(orgID string, raw []byte) (*channels.NormalizedInboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("%w: telegram: %v", channels.ErrInvalidPayload, err)
	}
	msg, edited := update.Message, false
	if msg == nil && update.EditedMessage != nil {
		msg, edited = update.EditedMessage, true
	}
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return nil, channels.ErrIgnoredUpdate
	}

	fullName := joinName(msg.From.FirstName, msg.From.LastName)
	username := strings.TrimSpace(msg.From.UserName)
	title := fullName
	if username != "" {
		title = "@" + username
	}

	out := &channels.NormalizedInboundMessage{
		ChannelType:       channels.ChannelTelegram,
		OrganizationID:    orgID,
		ExternalChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		ExternalUserID:    strconv.FormatInt(msg.From.ID, 10),
		UserName:          username,
		UserFullName:      fullName,
		TitleHint:         title,
		ExternalMessageID: strconv.Itoa(msg.MessageID),
		Timestamp:         time.Unix(int64(msg.Date), 0).UTC(),
		Edited:            edited,
		Metadata: map[string]any{
			"telegram_message_id": msg.MessageID,
			"date":                msg.Date,
			"chat_type":           msg.Chat.Type,
		},
	}
	if edited {
		// Edits share the original message_id; keep them distinct for dedup.
		out.ExternalMessageID = fmt.Sprintf("%d:edit:%d", msg.MessageID, msg.EditDate)
		if msg.EditDate > 0 {
			out.Timestamp = time.Unix(int64(msg.EditDate), 0).UTC()
		}
		out.Metadata["edit_date"] = msg.EditDate
	}
	out.MessageType, out.Text, out.Attachments = content(msg)
	return out, nil
}

func content(msg *tgbotapi.Message) (channels.MessageType, string, []channels.Attachment) {
	switch {
	case len(msg.Photo) > 0:
		photo := largestPhoto(msg.Photo)
		return channels.MessageImage, msg.Caption, []channels.Attachment{{
			Kind: "photo", FileID: photo.FileID, Width: photo.Width, Height: photo.Height,
		}}
	case msg.Document != nil:
		return channels.MessageFile, msg.Caption, []channels.Attachment{{
			Kind: "document", FileID: msg.Document.FileID, FileName: msg.Document.FileName, MimeType: msg.Document.MimeType,
		}}
	case msg.Audio != nil:
		return channels.MessageAudio, msg.Caption, []channels.Attachment{{
			Kind: "audio", FileID: msg.Audio.FileID, FileName: msg.Audio.Title, MimeType: msg.Audio.MimeType, Duration: msg.Audio.Duration,
		}}
	case msg.Video != nil:
		return channels.MessageVideo, msg.Caption, []channels.Attachment{{
			Kind: "video", FileID: msg.Video.FileID, Duration: msg.Video.Duration,
		}}
	case msg.Voice != nil:
		return channels.MessageAudio, "", []channels.Attachment{{
			Kind: "voice", FileID: msg.Voice.FileID, MimeType: msg.Voice.MimeType, Duration: msg.Voice.Duration,
		}}
	case msg.Sticker != nil:
		return channels.MessageSticker, msg.Sticker.Emoji, []channels.Attachment{{
			Kind: "sticker", FileID: msg.Sticker.FileID,
		}}
	case msg.Location != nil:
		return channels.MessageLocation, fmt.Sprintf("📍 %v, %v", msg.Location.Latitude, msg.Location.Longitude), nil
	case msg.Contact != nil:
		text := strings.TrimSpace(joinName(msg.Contact.FirstName, msg.Contact.LastName) + " " + msg.Contact.PhoneNumber)
		return channels.MessageContact, text, nil
	case msg.Text != "":
		return channels.MessageText, msg.Text, nil
	default:
		return channels.MessageOther, "", nil
	}
}

func largestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
