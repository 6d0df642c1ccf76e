package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/blob"
	"beacon/internal/chat"
	"beacon/internal/content"
	"beacon/internal/docstore"
	"beacon/internal/models"
	"beacon/internal/profile"
)

func TestSeeder_CreatesConsistentData(t *testing.T) {
	store := docstore.NewMemoryStore()
	dir := profile.NewDirectory(store, blob.NewMemoryStore(), nil)
	contents := content.NewService(store, blob.NewMemoryStore(), dir, nil)
	chats := chat.NewService(store, nil)

	opts := Options{
		NumUsers:        5,
		PostsPerUser:    2,
		CommentsPerPost: 1,
		LikeProbability: 0.5,
		PersonalChats:   3,
		MessagesPerChat: 2,
		RandomSeed:      42,
	}
	seeder := New(dir, contents, chats, opts)

	userIDs, err := seeder.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, userIDs, 5)

	posts, err := contents.GetPosts(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 10)

	// Every seeded post carries a valid author snapshot and derived
	// counters that match their lists.
	for _, post := range posts {
		prof, err := dir.Get(context.Background(), post.UserID)
		require.NoError(t, err)
		require.NotNil(t, prof)
		assert.Equal(t, prof.Username, post.Username)
		assert.Equal(t, len(post.LikedBy), post.Likes)
		assert.Equal(t, len(post.CommentList), post.Comments)
	}

	// Every user's post index matches the posts they authored.
	for _, userID := range userIDs {
		prof, err := dir.Get(context.Background(), userID)
		require.NoError(t, err)
		owned, err := contents.GetUserPosts(context.Background(), userID)
		require.NoError(t, err)
		assert.Len(t, prof.PostList, len(owned))
		assert.Equal(t, len(owned), prof.Posts)
	}
}

func TestSeeder_Deterministic(t *testing.T) {
	run := func() []string {
		store := docstore.NewMemoryStore()
		dir := profile.NewDirectory(store, blob.NewMemoryStore(), nil)
		contents := content.NewService(store, blob.NewMemoryStore(), dir, nil)
		chats := chat.NewService(store, nil)
		opts := DefaultOptions()
		opts.RandomSeed = 7
		seeder := New(dir, contents, chats, opts)
		ids, err := seeder.Run(context.Background())
		require.NoError(t, err)

		usernames := make([]string, 0, len(ids))
		for _, id := range ids {
			prof, err := dir.Get(context.Background(), id)
			require.NoError(t, err)
			usernames = append(usernames, prof.Username)
		}
		return usernames
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestSeeder_ChatsHavePreviews(t *testing.T) {
	store := docstore.NewMemoryStore()
	dir := profile.NewDirectory(store, blob.NewMemoryStore(), nil)
	contents := content.NewService(store, blob.NewMemoryStore(), dir, nil)
	chats := chat.NewService(store, nil)

	opts := DefaultOptions()
	opts.RandomSeed = 11
	seeder := New(dir, contents, chats, opts)
	userIDs, err := seeder.Run(context.Background())
	require.NoError(t, err)

	sawChat := false
	for _, userID := range userIDs {
		userChats, err := chats.GetUserChats(context.Background(), userID)
		require.NoError(t, err)
		for _, c := range userChats {
			sawChat = true
			assert.Equal(t, models.ChatTypePersonal, c.Type)
			assert.NotEmpty(t, c.LastMessage)
		}
	}
	assert.True(t, sawChat)
}
