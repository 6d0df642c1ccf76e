package models

import "time"

// Account is the credential record behind a user id. The id is opaque and
// stable for the account's lifetime; identity fields shown to other users
// live on the Profile instead.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
