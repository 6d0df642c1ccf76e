// Package models contains data structures for the application's domain documents.
package models

import "time"

// Profile is the canonical identity record for a user. There is exactly one
// per user id, created alongside the account at signup.
//
// PostList is the authoritative index of posts owned by this user; Posts and
// Friends are projections recomputed from their lists on every write, never
// stored independently.
type Profile struct {
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	Bio             string    `json:"bio"`
	HeaderImageURL  string    `json:"header_image_url"`
	ProfileImageURL string    `json:"profile_image_url"`
	Friends         int       `json:"friends"`
	FriendsList     []string  `json:"friends_list"`
	Posts           int       `json:"posts"`
	PostList        []string  `json:"post_list"`
	// Rev increases by one on every identity-field edit. Denormalized
	// copies carry the revision they were written from, so readers can
	// detect staleness without waiting for propagation.
	Rev       int64     `json:"rev"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate is a partial profile edit. Nil fields are left untouched.
type ProfileUpdate struct {
	Username        *string `json:"username,omitempty"`
	DisplayName     *string `json:"display_name,omitempty"`
	Bio             *string `json:"bio,omitempty"`
	HeaderImageURL  *string `json:"header_image_url,omitempty"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
}

// Empty reports whether the update carries no changes at all.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.DisplayName == nil && u.Bio == nil &&
		u.HeaderImageURL == nil && u.ProfileImageURL == nil
}
