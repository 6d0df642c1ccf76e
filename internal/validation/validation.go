// Package validation provides input validation for user-supplied fields.
// Everything here runs before any write; validation failures never reach
// the document store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxBioLength bounds the profile bio.
	MaxBioLength = 280
	// MaxCaptionLength bounds post captions.
	MaxCaptionLength = 2000
	// MaxCommentLength bounds comment text.
	MaxCommentLength = 500
	// MaxDisplayNameLength bounds the profile display name.
	MaxDisplayNameLength = 50
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.]{3,24}$`)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Route segments and collection names a username may not shadow.
var reservedUsernames = map[string]struct{}{
	"admin":    {},
	"api":      {},
	"auth":     {},
	"chats":    {},
	"comments": {},
	"feed":     {},
	"login":    {},
	"me":       {},
	"metrics":  {},
	"posts":    {},
	"profiles": {},
	"search":   {},
	"settings": {},
	"signup":   {},
	"users":    {},
	"ws":       {},
}

// NormalizeUsername lowercases and trims a candidate username; the
// normalized form is what the reservation index is keyed by.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates username format and reserved names.
func ValidateUsername(username string) error {
	normalized := NormalizeUsername(username)
	if !usernameRegex.MatchString(normalized) {
		return fmt.Errorf("username must be 3-24 characters and contain only lowercase letters, numbers, underscores, and dots")
	}
	if strings.HasPrefix(normalized, ".") || strings.HasSuffix(normalized, ".") {
		return fmt.Errorf("username cannot start or end with a dot")
	}
	if _, exists := reservedUsernames[normalized]; exists {
		return fmt.Errorf("username is reserved")
	}
	return nil
}

// ValidateDisplayName checks the display name is present and bounded.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return fmt.Errorf("display name must not exceed %d characters", MaxDisplayNameLength)
	}
	return nil
}

// ValidateBio checks the bio length bound.
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return fmt.Errorf("bio must not exceed %d characters", MaxBioLength)
	}
	return nil
}

// ValidateCaption checks post caption is present and bounded.
func ValidateCaption(caption string) error {
	if strings.TrimSpace(caption) == "" {
		return fmt.Errorf("caption is required")
	}
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("caption must not exceed %d characters", MaxCaptionLength)
	}
	return nil
}

// ValidateCommentText checks comment text is present and bounded.
func ValidateCommentText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("comment text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return fmt.Errorf("comment must not exceed %d characters", MaxCommentLength)
	}
	return nil
}

// ValidateEmail checks basic email shape. Deliverability is the mail
// provider's problem.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("password must be at least 12 characters long")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must not exceed 128 characters")
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return fmt.Errorf("password must contain at least one digit")
	}
	return nil
}
