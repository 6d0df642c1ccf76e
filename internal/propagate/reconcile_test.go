package propagate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/docstore"
	"beacon/internal/models"
)

func TestReconcile_RepairsStaleAuthorCopy(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "fresh", 3, "p1")
	seedPost(t, store, &models.Post{ID: "p1", UserID: "u1", Username: "stale", ProfileRev: 1})

	r := NewReconciler(store)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.IdentityRepairs)
	post := getPost(t, store, "p1")
	assert.Equal(t, "fresh", post.Username)
	assert.Equal(t, int64(3), post.ProfileRev)
}

func TestReconcile_RepairsStaleCommentCopy(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "fresh", 2)
	seedProfile(t, store, "u2", "host", 1, "p1")
	seedPost(t, store, &models.Post{
		ID: "p1", UserID: "u2", Username: "host", ProfileRev: 1,
		CommentList: []models.Comment{{ID: "c1", UserID: "u1", Username: "stale", ProfileRev: 1}},
		Comments:    1,
	})

	r := NewReconciler(store)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.IdentityRepairs)
	post := getPost(t, store, "p1")
	assert.Equal(t, "fresh", post.CommentList[0].Username)
	assert.Equal(t, int64(2), post.CommentList[0].ProfileRev)
}

func TestReconcile_AdoptsOrphanPost(t *testing.T) {
	store := docstore.NewMemoryStore()
	// p-orphan exists but the owner's index never recorded it.
	seedProfile(t, store, "u1", "name", 1, "p1")
	seedPost(t, store, &models.Post{ID: "p1", UserID: "u1", Username: "name", ProfileRev: 1})
	seedPost(t, store, &models.Post{ID: "p-orphan", UserID: "u1", Username: "name", ProfileRev: 1})

	r := NewReconciler(store)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.IndexRepairs)
	doc, err := store.Get(context.Background(), docstore.CollectionProfiles, "u1")
	require.NoError(t, err)
	var profile models.Profile
	require.NoError(t, docstore.Decode(doc, &profile))
	assert.ElementsMatch(t, []string{"p1", "p-orphan"}, profile.PostList)
	assert.Equal(t, 2, profile.Posts)
}

func TestReconcile_RepairsCounterDrift(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "name", 1, "p1")
	seedPost(t, store, &models.Post{
		ID: "p1", UserID: "u1", Username: "name", ProfileRev: 1,
		LikedBy: []string{"a", "b", "c"}, Likes: 1,
		CommentList: []models.Comment{{ID: "c1", UserID: "u1", Username: "name", ProfileRev: 1}},
		Comments:    5,
	})

	r := NewReconciler(store)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.CounterRepairs)
	post := getPost(t, store, "p1")
	assert.Equal(t, 3, post.Likes)
	assert.Equal(t, 1, post.Comments)
}

func TestReconcile_CleanStoreReportsNothing(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "name", 1, "p1")
	seedPost(t, store, &models.Post{
		ID: "p1", UserID: "u1", Username: "name", ProfileRev: 1,
		LikedBy: []string{}, CommentList: []models.Comment{},
	})

	inner := newCountingStore(store)
	r := NewReconciler(inner)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.IdentityRepairs)
	assert.Zero(t, report.IndexRepairs)
	assert.Zero(t, report.CounterRepairs)
	assert.Zero(t, inner.applyCount(docstore.CollectionPosts, "p1"))
}

func TestReconcile_SkipsPostsWithoutKnownOwner(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPost(t, store, &models.Post{ID: "p1", UserID: "gone", Username: "ghost", ProfileRev: 1})

	r := NewReconciler(store)
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.IdentityRepairs)
	assert.Equal(t, "ghost", getPost(t, store, "p1").Username)
}
