// Package auth handles account registration, credential verification, and
// JWT issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"beacon/internal/docstore"
	"beacon/internal/models"
	"beacon/internal/observability"
	"beacon/internal/validation"
)

// TokenTTL is how long an issued token remains valid.
const TokenTTL = 72 * time.Hour

// Service manages accounts and tokens.
type Service struct {
	store     docstore.Store
	jwtSecret []byte
	log       *observability.StoreLogger
}

// NewService creates an auth service signing tokens with jwtSecret.
func NewService(store docstore.Store, jwtSecret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		log:       observability.NewStoreLogger(docstore.CollectionAccounts),
	}
}

// Register creates an account for the email and returns it with a signed
// token. The email is claimed atomically through an index keyed by the
// normalized address, so concurrent registrations cannot share it.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Account, string, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, "", models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, "", models.NewValidationError(err.Error())
	}

	normalized := normalizeEmail(email)
	userID := uuid.NewString()

	err := s.store.Create(ctx, docstore.CollectionEmails, normalized, docstore.Document{
		"user_id": userID,
	})
	if errors.Is(err, docstore.ErrExists) {
		return nil, "", models.NewConflictError("an account with this email already exists")
	}
	if err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.releaseEmail(ctx, normalized)
		return nil, "", models.NewInternalError(err)
	}

	account := &models.Account{
		ID:           userID,
		Email:        normalized,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, docstore.CollectionAccounts, userID, docstore.MustEncode(account)); err != nil {
		s.releaseEmail(ctx, normalized)
		return nil, "", err
	}

	token, err := s.IssueToken(userID)
	if err != nil {
		return nil, "", err
	}
	s.log.LogWrite(ctx, map[string]interface{}{"user_id": userID})
	return account, token, nil
}

// Login verifies the credentials and returns the account with a fresh
// token. Wrong email and wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Account, string, error) {
	normalized := normalizeEmail(email)

	indexDoc, err := s.store.Get(ctx, docstore.CollectionEmails, normalized)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, "", models.NewUnauthorizedError("invalid email or password")
	}
	if err != nil {
		return nil, "", err
	}
	userID, _ := indexDoc["user_id"].(string)

	accountDoc, err := s.store.Get(ctx, docstore.CollectionAccounts, userID)
	if err != nil {
		return nil, "", models.NewUnauthorizedError("invalid email or password")
	}
	var account models.Account
	if err := docstore.Decode(accountDoc, &account); err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, "", models.NewUnauthorizedError("invalid email or password")
	}

	token, err := s.IssueToken(account.ID)
	if err != nil {
		return nil, "", err
	}
	return &account, token, nil
}

// IssueToken signs a JWT for the user.
func (s *Service) IssueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return signed, nil
}

// VerifyToken validates a signed token and returns the user id it carries.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", models.NewUnauthorizedError("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", models.NewUnauthorizedError("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", models.NewUnauthorizedError("token missing subject")
	}
	return sub, nil
}

func (s *Service) releaseEmail(ctx context.Context, normalized string) {
	_ = s.store.Delete(ctx, docstore.CollectionEmails, normalized)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
