package models

import "time"

// FeedEventType identifies what changed in the content store.
type FeedEventType string

const (
	FeedEventPostCreated  FeedEventType = "post_created"
	FeedEventPostDeleted  FeedEventType = "post_deleted"
	FeedEventLikeToggled  FeedEventType = "like_toggled"
	FeedEventCommentAdded FeedEventType = "comment_added"
	FeedEventMessageSent  FeedEventType = "message_sent"
)

// FeedEvent is a lightweight notification pushed to live feed
// subscribers. It carries identifiers, not document bodies; subscribers
// re-fetch what they care about.
type FeedEvent struct {
	Type   FeedEventType `json:"type"`
	PostID string        `json:"post_id,omitempty"`
	ChatID string        `json:"chat_id,omitempty"`
	UserID string        `json:"user_id"`
	At     time.Time     `json:"at"`
}
