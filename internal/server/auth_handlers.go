package server

import (
	"github.com/gofiber/fiber/v2"

	"beacon/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Username and DisplayName are used by signup to create the profile
	// alongside the account.
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type authResponse struct {
	Token   string          `json:"token"`
	UserID  string          `json:"user_id"`
	Profile *models.Profile `json:"profile,omitempty"`
}

// Signup registers an account and, when a username is supplied, creates
// the matching profile in the same request.
func (s *Server) Signup(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}

	account, token, err := s.authService.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}

	var prof *models.Profile
	if req.Username != "" {
		displayName := req.DisplayName
		if displayName == "" {
			displayName = req.Username
		}
		prof, err = s.directory.Create(c.UserContext(), account.ID, req.Username, displayName)
		if err != nil {
			// The account exists; the client can retry profile creation
			// with a different username.
			return fail(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(authResponse{
		Token:   token,
		UserID:  account.ID,
		Profile: prof,
	})
}

// Login verifies credentials and returns a fresh token.
func (s *Server) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}

	account, token, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}

	prof, err := s.directory.Get(c.UserContext(), account.ID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(authResponse{
		Token:   token,
		UserID:  account.ID,
		Profile: prof,
	})
}
