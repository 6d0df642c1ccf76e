package models

import "time"

// ChatType distinguishes direct conversations from named groups.
type ChatType string

// Chat types.
const (
	ChatTypePersonal ChatType = "personal"
	ChatTypeGroup    ChatType = "group"
)

// Chat is a conversation between two or more participants. LastMessage and
// LastMessageTime are a cache of the newest message for chat-list previews.
type Chat struct {
	ID              string    `json:"id"`
	Type            ChatType  `json:"type"`
	Participants    []string  `json:"participants"`
	Name            string    `json:"name,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageTime time.Time `json:"last_message_time,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a single chat message. ReadBy starts out containing only the
// sender.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	ReadBy    []string  `json:"read_by"`
	Timestamp time.Time `json:"timestamp"`
}
