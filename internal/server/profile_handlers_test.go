package server

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/models"
)

func TestUpdateProfile_ChangesBio(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := signup(t, app, "alice@example.com", "alice")

	resp := doJSON(t, app, fiber.MethodPut, "/api/profiles/me", token, map[string]string{
		"bio": "hello from the tests",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var prof models.Profile
	decodeBody(t, resp, &prof)
	assert.Equal(t, "hello from the tests", prof.Bio)
	assert.Equal(t, int64(1), prof.Rev)
}

func TestUpdateProfile_UsernameChangeRewritesPostsAndComments(t *testing.T) {
	srv, app := newTestServer(t)
	aliceToken, aliceID := signup(t, app, "alice@example.com", "alice")
	bobToken, bobID := signup(t, app, "bob@example.com", "bob")

	// Alice posts; Bob comments on it; Alice comments on her own post too.
	resp := doJSON(t, app, fiber.MethodPost, "/api/posts", aliceToken, map[string]string{
		"caption": "original post",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var post models.Post
	decodeBody(t, resp, &post)
	assert.Equal(t, "alice", post.Username)

	resp = doJSON(t, app, fiber.MethodPost, "/api/posts/"+post.ID+"/comments", bobToken, map[string]string{
		"text": "from bob",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = doJSON(t, app, fiber.MethodPost, "/api/posts/"+post.ID+"/comments", aliceToken, map[string]string{
		"text": "from alice",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Alice renames herself. All her denormalized copies must follow.
	resp = doJSON(t, app, fiber.MethodPut, "/api/profiles/me", aliceToken, map[string]string{
		"username": "alicia",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodGet, "/api/posts/"+post.ID, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var refreshed models.Post
	decodeBody(t, resp, &refreshed)
	assert.Equal(t, "alicia", refreshed.Username)

	byUser := map[string]string{}
	for _, comment := range refreshed.CommentList {
		byUser[comment.UserID] = comment.Username
	}
	assert.Equal(t, "alicia", byUser[aliceID])
	assert.Equal(t, "bob", byUser[bobID])

	// Old name is free again.
	resp = doJSON(t, app, fiber.MethodGet, "/api/profiles/check-username?username=alice", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var check map[string]any
	decodeBody(t, resp, &check)
	assert.Equal(t, true, check["available"])

	_ = srv
}

func TestUpdateProfile_TakenUsername(t *testing.T) {
	_, app := newTestServer(t)
	signup(t, app, "alice@example.com", "alice")
	bobToken, _ := signup(t, app, "bob@example.com", "bob")

	resp := doJSON(t, app, fiber.MethodPut, "/api/profiles/me", bobToken, map[string]string{
		"username": "alice",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCheckUsername(t *testing.T) {
	_, app := newTestServer(t)
	signup(t, app, "alice@example.com", "alice")

	resp := doJSON(t, app, fiber.MethodGet, "/api/profiles/check-username?username=alice", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var check map[string]any
	decodeBody(t, resp, &check)
	assert.Equal(t, false, check["available"])

	resp = doJSON(t, app, fiber.MethodGet, "/api/profiles/check-username?username=free_name", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &check)
	assert.Equal(t, true, check["available"])
}

func TestGetProfile_NotFound(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := signup(t, app, "alice@example.com", "alice")

	resp := doJSON(t, app, fiber.MethodGet, "/api/profiles/no-such-user", token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFriends_AddAndRemove(t *testing.T) {
	_, app := newTestServer(t)
	aliceToken, _ := signup(t, app, "alice@example.com", "alice")
	_, bobID := signup(t, app, "bob@example.com", "bob")

	resp := doJSON(t, app, fiber.MethodPost, "/api/friends/"+bobID, aliceToken, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodGet, "/api/profiles/me", aliceToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var prof models.Profile
	decodeBody(t, resp, &prof)
	assert.Equal(t, []string{bobID}, prof.FriendsList)
	assert.Equal(t, 1, prof.Friends)

	resp = doJSON(t, app, fiber.MethodDelete, "/api/friends/"+bobID, aliceToken, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestSearchProfiles(t *testing.T) {
	_, app := newTestServer(t)
	signup(t, app, "alice@example.com", "alice_wonder")
	signup(t, app, "bob@example.com", "bob")

	resp := doJSON(t, app, fiber.MethodGet, "/api/profiles/search?q=wonder", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Profiles []models.Profile `json:"profiles"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Profiles, 1)
	assert.Equal(t, "alice_wonder", body.Profiles[0].Username)
}
