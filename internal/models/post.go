package models

import (
	"fmt"
	"time"
)

// Post is an authored content item. The author's username and profile image
// are denormalized into the document at write time and kept consistent by
// the propagator after profile edits.
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	ProfileImage string    `json:"profile_image"`
	ProfileRev   int64     `json:"profile_rev"`
	Caption      string    `json:"caption"`
	ImageURL     string    `json:"image_url"`
	Likes        int       `json:"likes"`
	Comments     int       `json:"comments"`
	LikedBy      []string  `json:"liked_by"`
	CommentList  []Comment `json:"comment_list"`
	CreatedAt    time.Time `json:"created_at"`
}

// LikedByUser reports whether userID is in the post's likedBy set.
func (p *Post) LikedByUser(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment is embedded inside its parent post's comment list; comments are
// not a top-level collection. Author-identifying fields are denormalized
// snapshots of the author's profile.
type Comment struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	ProfileImage string    `json:"profile_image"`
	ProfileRev   int64     `json:"profile_rev"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewCommentID builds the comment id from the creation time and author,
// unique per (timestamp, author) pair.
func NewCommentID(at time.Time, authorID string) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), authorID)
}
