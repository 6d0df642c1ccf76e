// Package chat provides direct and group conversations. Each chat document
// carries a denormalized preview of its latest message so chat lists render
// without reading the messages collection.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"beacon/internal/cache"
	"beacon/internal/docstore"
	"beacon/internal/models"
	"beacon/internal/observability"
)

// EventPublisher receives an event per sent message. May be nil.
type EventPublisher interface {
	Publish(ctx context.Context, event models.FeedEvent)
}

// Service manages chats and messages.
type Service struct {
	store  docstore.Store
	events EventPublisher
	log    *observability.StoreLogger
}

// NewService creates a chat service.
func NewService(store docstore.Store, events EventPublisher) *Service {
	return &Service{
		store:  store,
		events: events,
		log:    observability.NewStoreLogger(docstore.CollectionChats),
	}
}

// CreateChat starts a conversation. A personal chat between the same two
// users is deduplicated: if one already exists it is returned instead of
// creating a second.
func (s *Service) CreateChat(ctx context.Context, chatType models.ChatType, creatorID string, participants []string, name string) (*models.Chat, error) {
	members := dedupeParticipants(append([]string{creatorID}, participants...))

	switch chatType {
	case models.ChatTypePersonal:
		if len(members) != 2 {
			return nil, models.NewValidationError("a personal chat has exactly two participants")
		}
		if existing, err := s.findPersonalChat(ctx, members); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	case models.ChatTypeGroup:
		if len(members) < 2 {
			return nil, models.NewValidationError("a group chat needs at least two participants")
		}
		if strings.TrimSpace(name) == "" {
			return nil, models.NewValidationError("a group chat needs a name")
		}
	default:
		return nil, models.NewValidationError("chat type must be personal or group")
	}

	chat := &models.Chat{
		ID:           uuid.NewString(),
		Type:         chatType,
		Name:         name,
		Participants: members,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, docstore.CollectionChats, chat.ID, docstore.MustEncode(chat)); err != nil {
		return nil, err
	}
	s.log.LogWrite(ctx, map[string]interface{}{"chat_id": chat.ID, "participants": len(members)})
	return chat, nil
}

// GetChat returns a chat the caller participates in.
func (s *Service) GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	var chat models.Chat
	err := cache.Aside(ctx, cache.ChatKey(chatID), &chat, cache.ChatTTL, func() error {
		doc, err := s.store.Get(ctx, docstore.CollectionChats, chatID)
		if err != nil {
			return err
		}
		return docstore.Decode(doc, &chat)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, models.NewNotFoundError("chat", chatID)
	}
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, models.NewForbiddenError("not a participant in this chat")
	}
	return &chat, nil
}

// GetUserChats returns the chats the user participates in, most recently
// active first.
func (s *Service) GetUserChats(ctx context.Context, userID string) ([]*models.Chat, error) {
	docs, err := s.store.Query(ctx, docstore.CollectionChats, docstore.Where("participants", "array-contains", userID))
	if err != nil {
		return nil, err
	}
	chats := make([]*models.Chat, 0, len(docs))
	for _, doc := range docs {
		var chat models.Chat
		if err := docstore.Decode(doc, &chat); err != nil {
			return nil, err
		}
		chats = append(chats, &chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastMessageTime.After(chats[j].LastMessageTime)
	})
	return chats, nil
}

// SendMessage appends a message and refreshes the chat's denormalized
// preview. The sender has implicitly read their own message.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError("message text is required")
	}
	chat, err := s.GetChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	message := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  senderID,
		Text:      text,
		ReadBy:    []string{senderID},
		Timestamp: now,
	}
	if err := s.store.Create(ctx, docstore.CollectionMessages, message.ID, docstore.MustEncode(message)); err != nil {
		return nil, err
	}

	err = s.store.Apply(ctx, docstore.CollectionChats, chat.ID, docstore.Update{
		"last_message":      text,
		"last_message_time": now.Format(time.RFC3339Nano),
	})
	if err != nil {
		// The message exists; only the preview is stale.
		s.log.LogError(ctx, err, "update_preview")
	}
	cache.Invalidate(ctx, cache.ChatKey(chat.ID))

	if s.events != nil {
		s.events.Publish(ctx, models.FeedEvent{
			Type: models.FeedEventMessageSent, ChatID: chat.ID, UserID: senderID, At: now,
		})
	}
	return message, nil
}

// GetMessages returns a chat's messages oldest first, for a participant.
func (s *Service) GetMessages(ctx context.Context, chatID, userID string) ([]*models.Message, error) {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, docstore.CollectionMessages, docstore.Where("chat_id", "==", chatID))
	if err != nil {
		return nil, err
	}
	messages := make([]*models.Message, 0, len(docs))
	for _, doc := range docs {
		var m models.Message
		if err := docstore.Decode(doc, &m); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// MarkRead records that the user has read a message. Adding the same
// reader twice is a no-op.
func (s *Service) MarkRead(ctx context.Context, chatID, messageID, userID string) error {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	err := s.store.Apply(ctx, docstore.CollectionMessages, messageID, docstore.Update{
		"read_by": docstore.ArrayUnion(userID),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return models.NewNotFoundError("message", messageID)
	}
	return err
}

// findPersonalChat locates an existing personal chat with exactly these
// two members.
func (s *Service) findPersonalChat(ctx context.Context, members []string) (*models.Chat, error) {
	docs, err := s.store.Query(ctx, docstore.CollectionChats, docstore.Where("participants", "array-contains", members[0]))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		var chat models.Chat
		if err := docstore.Decode(doc, &chat); err != nil {
			return nil, err
		}
		if chat.Type != models.ChatTypePersonal || len(chat.Participants) != 2 {
			continue
		}
		if chat.HasParticipant(members[1]) {
			return &chat, nil
		}
	}
	return nil, nil
}

func dedupeParticipants(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
