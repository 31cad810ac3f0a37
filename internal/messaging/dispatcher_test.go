package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
)

type fakeSender struct {
	chatID string
	text   string
	id     string
	err    error
	block  bool
}

func (s *fakeSender) Send(ctx context.Context, chatID, text string) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	s.chatID, s.text = chatID, text
	return s.id, s.err
}

type fakeResolver struct {
	sender channels.Sender
	err    error
}

func (r fakeResolver) Sender(context.Context, string, channels.ChannelType) (channels.Sender, error) {
	return r.sender, r.err
}

func newConversation(t *testing.T, repo *conversations.InMemoryRepository) *conversations.Conversation {
	t.Helper()
	conv := &conversations.Conversation{OrgID: "org-1", ChannelType: channels.ChannelTelegram, ExternalChatID: "100", AIEnabled: true, Status: conversations.StatusOpen}
	_, err := repo.Insert(context.Background(), conv)
	require.NoError(t, err)
	return conv
}

func TestSendReplyPersistsAfterSend(t *testing.T) {
	convs := conversations.NewInMemoryRepository()
	msgRepo := messages.NewInMemoryRepository()
	store := messages.NewStore(msgRepo, convs, nil)
	sender := &fakeSender{id: "555"}
	d := NewDispatcher(fakeResolver{sender: sender}, store, nil)
	conv := newConversation(t, convs)

	msg, err := d.SendReply(context.Background(), Reply{Conversation: conv, Text: "Hello!", Sender: messages.SenderUser})
	require.NoError(t, err)
	assert.Equal(t, "100", sender.chatID)
	assert.Equal(t, "Hello!", sender.text)
	assert.Equal(t, "555", msg.ExternalMessageID)
	assert.Equal(t, messages.StatusSent, msg.Status)
	assert.False(t, msg.IsAIGenerated)

	recent, err := store.Recent(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSendReplyNotConnectedStoresNothing(t *testing.T) {
	convs := conversations.NewInMemoryRepository()
	store := messages.NewStore(messages.NewInMemoryRepository(), convs, nil)
	d := NewDispatcher(fakeResolver{err: channels.ErrChannelNotConnected}, store, nil)
	conv := newConversation(t, convs)

	_, err := d.SendReply(context.Background(), Reply{Conversation: conv, Text: "Hello!", Sender: messages.SenderAI})
	assert.ErrorIs(t, err, channels.ErrChannelNotConnected)

	recent, _ := store.Recent(context.Background(), conv.ID, 10)
	assert.Empty(t, recent)
}

func TestDispatchWrapsSendErrors(t *testing.T) {
	convs := conversations.NewInMemoryRepository()
	store := messages.NewStore(messages.NewInMemoryRepository(), convs, nil)
	d := NewDispatcher(fakeResolver{sender: &fakeSender{err: errors.New("boom")}}, store, nil)
	conv := newConversation(t, convs)

	_, err := d.Dispatch(context.Background(), conv, "hi")
	assert.ErrorIs(t, err, channels.ErrChannelSendFailed)
}

func TestDispatchHonoursSendTimeout(t *testing.T) {
	convs := conversations.NewInMemoryRepository()
	store := messages.NewStore(messages.NewInMemoryRepository(), convs, nil)
	d := NewDispatcher(fakeResolver{sender: &fakeSender{block: true}}, store, nil, WithSendTimeout(20*time.Millisecond))
	conv := newConversation(t, convs)

	start := time.Now()
	_, err := d.Dispatch(context.Background(), conv, "hi")
	assert.ErrorIs(t, err, channels.ErrChannelSendFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatchRejectsBlankText(t *testing.T) {
	convs := conversations.NewInMemoryRepository()
	store := messages.NewStore(messages.NewInMemoryRepository(), convs, nil)
	d := NewDispatcher(fakeResolver{sender: &fakeSender{}}, store, nil)
	_, err := d.Dispatch(context.Background(), newConversation(t, convs), "   ")
	assert.ErrorIs(t, err, ErrEmptyReply)
}
