package propagate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/docstore"
	"beacon/internal/models"
)

// countingStore wraps a Store and counts Apply calls per document, with an
// optional per-document failure injection.
type countingStore struct {
	docstore.Store

	mu      sync.Mutex
	applies map[string]int
	failIDs map[string]error
}

func newCountingStore(inner docstore.Store) *countingStore {
	return &countingStore{
		Store:   inner,
		applies: map[string]int{},
		failIDs: map[string]error{},
	}
}

func (s *countingStore) Apply(ctx context.Context, collection, id string, update docstore.Update) error {
	s.mu.Lock()
	s.applies[collection+"/"+id]++
	err, injected := s.failIDs[id]
	s.mu.Unlock()
	if injected {
		return err
	}
	return s.Store.Apply(ctx, collection, id, update)
}

func (s *countingStore) applyCount(collection, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies[collection+"/"+id]
}

func seedProfile(t *testing.T, store docstore.Store, userID, username string, rev int64, postIDs ...string) {
	t.Helper()
	profile := &models.Profile{
		UserID:   userID,
		Username: username,
		Rev:      rev,
		PostList: postIDs,
		Posts:    len(postIDs),
	}
	require.NoError(t, store.Set(context.Background(), docstore.CollectionProfiles, userID, docstore.MustEncode(profile)))
}

func seedPost(t *testing.T, store docstore.Store, post *models.Post) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), docstore.CollectionPosts, post.ID, docstore.MustEncode(post)))
}

func getPost(t *testing.T, store docstore.Store, id string) models.Post {
	t.Helper()
	doc, err := store.Get(context.Background(), docstore.CollectionPosts, id)
	require.NoError(t, err)
	var post models.Post
	require.NoError(t, docstore.Decode(doc, &post))
	return post
}

func TestPropagateUsername_UpdatesAllOwnedPosts(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "newname", 2, "p1", "p2")
	seedPost(t, store, &models.Post{ID: "p1", UserID: "u1", Username: "oldname", ProfileRev: 1})
	seedPost(t, store, &models.Post{ID: "p2", UserID: "u1", Username: "oldname", ProfileRev: 1})
	seedPost(t, store, &models.Post{ID: "p3", UserID: "u2", Username: "other", ProfileRev: 1})

	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))

	assert.Equal(t, "newname", getPost(t, store, "p1").Username)
	assert.Equal(t, int64(2), getPost(t, store, "p1").ProfileRev)
	assert.Equal(t, "newname", getPost(t, store, "p2").Username)
	// Posts by other users are untouched.
	assert.Equal(t, "other", getPost(t, store, "p3").Username)
}

func TestPropagateUsername_RewritesCommentsEverywhere(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "newname", 2)
	// u1 commented on another user's post.
	seedPost(t, store, &models.Post{
		ID: "p1", UserID: "u2", Username: "host",
		CommentList: []models.Comment{
			{ID: "c1", UserID: "u1", Username: "oldname", Text: "hi"},
			{ID: "c2", UserID: "u3", Username: "bystander", Text: "yo"},
		},
		Comments: 2,
	})

	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))

	post := getPost(t, store, "p1")
	assert.Equal(t, "newname", post.CommentList[0].Username)
	assert.Equal(t, int64(2), post.CommentList[0].ProfileRev)
	assert.Equal(t, "bystander", post.CommentList[1].Username)
	assert.Equal(t, 2, post.Comments)
}

func TestPropagateUsername_SkipsPostsWithoutUserComments(t *testing.T) {
	inner := docstore.NewMemoryStore()
	seedProfile(t, inner, "u1", "newname", 2)
	seedPost(t, inner, &models.Post{
		ID: "p1", UserID: "u2",
		CommentList: []models.Comment{{ID: "c1", UserID: "u9", Username: "someone"}},
	})
	seedPost(t, inner, &models.Post{ID: "p2", UserID: "u2"})

	store := newCountingStore(inner)
	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))

	// Neither post contains a comment by u1, so neither is written.
	assert.Zero(t, store.applyCount(docstore.CollectionPosts, "p1"))
	assert.Zero(t, store.applyCount(docstore.CollectionPosts, "p2"))
}

func TestPropagateUsername_SecondRunWritesNothing(t *testing.T) {
	inner := docstore.NewMemoryStore()
	seedProfile(t, inner, "u1", "newname", 2, "p1")
	seedPost(t, inner, &models.Post{
		ID: "p1", UserID: "u1", Username: "oldname", ProfileRev: 1,
		CommentList: []models.Comment{{ID: "c1", UserID: "u1", Username: "oldname", ProfileRev: 1}},
	})

	store := newCountingStore(inner)
	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))
	firstRun := store.applyCount(docstore.CollectionPosts, "p1")
	require.Positive(t, firstRun)

	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))
	assert.Equal(t, firstRun, store.applyCount(docstore.CollectionPosts, "p1"),
		"a repeated propagation must not rewrite documents that already carry the value")
}

func TestPropagateUsername_SkipsNewerRevision(t *testing.T) {
	inner := docstore.NewMemoryStore()
	seedProfile(t, inner, "u1", "second", 3, "p1")
	// p1 already carries rev 3 from a later edit; a delayed rev-2 fan-out
	// must not clobber it.
	seedPost(t, inner, &models.Post{ID: "p1", UserID: "u1", Username: "second", ProfileRev: 3})

	store := newCountingStore(inner)
	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "first", 2))

	assert.Zero(t, store.applyCount(docstore.CollectionPosts, "p1"))
	assert.Equal(t, "second", getPost(t, store, "p1").Username)
}

func TestPropagateUsername_PartialFailureLeavesSuccesses(t *testing.T) {
	inner := docstore.NewMemoryStore()
	seedProfile(t, inner, "u1", "newname", 2, "p1", "p2", "p3")
	for _, id := range []string{"p1", "p2", "p3"} {
		seedPost(t, inner, &models.Post{ID: id, UserID: "u1", Username: "oldname", ProfileRev: 1})
	}

	store := newCountingStore(inner)
	store.failIDs["p2"] = errors.New("store unavailable")
	p := New(store)
	p.maxRetries = 0

	err := p.PropagateUsername(context.Background(), "u1", "newname", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p2")

	// The failures do not roll back the successful writes.
	assert.Equal(t, "newname", getPost(t, store, "p1").Username)
	assert.Equal(t, "newname", getPost(t, store, "p3").Username)
	assert.Equal(t, "oldname", getPost(t, store, "p2").Username)
}

func TestPropagateUsername_StaleIndexEntryIgnored(t *testing.T) {
	store := docstore.NewMemoryStore()
	// Index references a post that no longer exists.
	seedProfile(t, store, "u1", "newname", 2, "p1", "ghost")
	seedPost(t, store, &models.Post{ID: "p1", UserID: "u1", Username: "oldname", ProfileRev: 1})

	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))
	assert.Equal(t, "newname", getPost(t, store, "p1").Username)
}

func TestPropagateAvatar_UpdatesPostsAndComments(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedProfile(t, store, "u1", "name", 2, "p1")
	seedPost(t, store, &models.Post{ID: "p1", UserID: "u1", Username: "name", ProfileImage: "old.webp", ProfileRev: 1})
	seedPost(t, store, &models.Post{
		ID: "p2", UserID: "u2",
		CommentList: []models.Comment{{ID: "c1", UserID: "u1", ProfileImage: "old.webp"}},
	})

	p := New(store)
	require.NoError(t, p.PropagateAvatar(context.Background(), "u1", "new.webp", 2))

	assert.Equal(t, "new.webp", getPost(t, store, "p1").ProfileImage)
	assert.Equal(t, "new.webp", getPost(t, store, "p2").CommentList[0].ProfileImage)
}

func TestPropagateUsername_NoProfileIsNoOp(t *testing.T) {
	store := docstore.NewMemoryStore()
	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "missing", "name", 1))
}

func TestPropagateUsername_ManyPostsComplete(t *testing.T) {
	store := docstore.NewMemoryStore()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("post-%02d", i)
		seedPost(t, store, &models.Post{ID: ids[i], UserID: "u1", Username: "oldname", ProfileRev: 1})
	}
	seedProfile(t, store, "u1", "newname", 2, ids...)

	p := New(store)
	require.NoError(t, p.PropagateUsername(context.Background(), "u1", "newname", 2))
	for _, id := range ids {
		assert.Equal(t, "newname", getPost(t, store, id).Username)
	}
}
