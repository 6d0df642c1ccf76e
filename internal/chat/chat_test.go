package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/docstore"
	"beacon/internal/models"
)

func newTestService() *Service {
	return NewService(docstore.NewMemoryStore(), nil)
}

func TestCreateChat_Personal(t *testing.T) {
	svc := newTestService()
	chat, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, chat.Participants)
	assert.Equal(t, models.ChatTypePersonal, chat.Type)
}

func TestCreateChat_PersonalDeduplicates(t *testing.T) {
	svc := newTestService()
	first, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)

	// Same pair, either direction, lands in the same chat.
	second, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u2", []string{"u1"}, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	chats, err := svc.GetUserChats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestCreateChat_PersonalNeedsTwoMembers(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", nil, "")
	require.Error(t, err)
	_, err = svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u1"}, "")
	require.Error(t, err)
}

func TestCreateChat_GroupNeedsName(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateChat(context.Background(), models.ChatTypeGroup, "u1", []string{"u2", "u3"}, "  ")
	require.Error(t, err)

	chat, err := svc.CreateChat(context.Background(), models.ChatTypeGroup, "u1", []string{"u2", "u3"}, "climbing crew")
	require.NoError(t, err)
	assert.Len(t, chat.Participants, 3)
}

func TestSendMessage_UpdatesPreviewAndReadBy(t *testing.T) {
	svc := newTestService()
	chat, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)

	msg, err := svc.SendMessage(context.Background(), chat.ID, "u1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, msg.ReadBy)

	refreshed, err := svc.GetChat(context.Background(), chat.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "hello there", refreshed.LastMessage)
	assert.False(t, refreshed.LastMessageTime.IsZero())
}

func TestSendMessage_NonParticipantForbidden(t *testing.T) {
	svc := newTestService()
	chat, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), chat.ID, "intruder", "hi")
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestGetMessages_OldestFirstParticipantsOnly(t *testing.T) {
	svc := newTestService()
	chat, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), chat.ID, "u1", "first")
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), chat.ID, "u2", "second")
	require.NoError(t, err)

	messages, err := svc.GetMessages(context.Background(), chat.ID, "u1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)

	_, err = svc.GetMessages(context.Background(), chat.ID, "intruder")
	require.Error(t, err)
}

func TestMarkRead_Idempotent(t *testing.T) {
	svc := newTestService()
	chat, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)
	msg, err := svc.SendMessage(context.Background(), chat.ID, "u1", "read me")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), chat.ID, msg.ID, "u2"))
	require.NoError(t, svc.MarkRead(context.Background(), chat.ID, msg.ID, "u2"))

	messages, err := svc.GetMessages(context.Background(), chat.ID, "u2")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.ElementsMatch(t, []string{"u1", "u2"}, messages[0].ReadBy)
}

func TestGetUserChats_MostRecentFirst(t *testing.T) {
	svc := newTestService()
	older, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u2"}, "")
	require.NoError(t, err)
	newer, err := svc.CreateChat(context.Background(), models.ChatTypePersonal, "u1", []string{"u3"}, "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), older.ID, "u1", "early")
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), newer.ID, "u1", "late")
	require.NoError(t, err)

	chats, err := svc.GetUserChats(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)
}

func TestGetChat_Missing(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetChat(context.Background(), "nope", "u1")
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
