package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"beacon/internal/blob"
	"beacon/internal/config"
	"beacon/internal/docstore"
)

func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	cfg := &config.Config{
		Port:        "0",
		Env:         "test",
		JWTSecret:   "server-test-secret-key",
		StoreDriver: "memory",
		BlobDriver:  "memory",
	}
	srv := NewServerWithDeps(cfg, docstore.NewMemoryStore(), blob.NewMemoryStore(), nil)
	return srv, srv.App()
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// signup registers a user with a profile and returns (token, userID).
func signup(t *testing.T, app *fiber.App, email, username string) (string, string) {
	t.Helper()
	resp := doJSON(t, app, fiber.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":        email,
		"password":     "Str0ngPassword!",
		"username":     username,
		"display_name": "Test " + username,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body authResponse
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Token)
	require.NotEmpty(t, body.UserID)
	return body.Token, body.UserID
}
