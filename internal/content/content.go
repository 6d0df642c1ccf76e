// Package content owns posts and their embedded social state: likes,
// comments, and the denormalized author identity stamped onto each. Author
// fields are copied from the profile at write time; keeping those copies
// fresh afterwards is the propagation layer's job.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"beacon/internal/blob"
	"beacon/internal/cache"
	"beacon/internal/docstore"
	"beacon/internal/images"
	"beacon/internal/models"
	"beacon/internal/observability"
	"beacon/internal/validation"
)

// ProfileSource provides the author identity snapshot for new posts and
// comments, and the authoritative post index.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	IndexPost(ctx context.Context, userID, postID string) error
}

// EventPublisher receives feed events as content changes. A nil publisher
// disables feed fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, event models.FeedEvent)
}

// Service is the content store.
type Service struct {
	store     docstore.Store
	blobs     blob.Store
	processor *images.Processor
	profiles  ProfileSource
	events    EventPublisher
	log       *observability.StoreLogger

	subMu   sync.Mutex
	subs    map[int]func([]*models.Post)
	nextSub int
}

// NewService creates a content service. blobs and events may be nil.
func NewService(store docstore.Store, blobs blob.Store, profiles ProfileSource, events EventPublisher) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		processor: images.NewProcessor(images.DefaultMaxDimension),
		profiles:  profiles,
		events:    events,
		log:       observability.NewStoreLogger(docstore.CollectionPosts),
		subs:      make(map[int]func([]*models.Post)),
	}
}

// CreatePost creates a post carrying a snapshot of the author's current
// identity, then records it in the author's post index. The two writes are
// separate documents; if the second fails the post exists but is invisible
// to fan-out until the reconciliation sweep adopts it.
func (s *Service) CreatePost(ctx context.Context, userID, caption string, imageData []byte) (*models.Post, error) {
	if err := validation.ValidateCaption(caption); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	author, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return nil, models.NewValidationError("a profile is required before posting")
	}

	imageURL := ""
	if len(imageData) > 0 {
		if s.blobs == nil {
			return nil, models.NewInternalError(errors.New("blob storage not configured"))
		}
		processed, err := s.processor.Process(imageData)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		key := fmt.Sprintf("postImages/%s/%d.webp", userID, time.Now().UnixMilli())
		imageURL, err = s.blobs.Upload(ctx, key, processed.Data, processed.ContentType)
		if err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		ID:           uuid.NewString(),
		UserID:       userID,
		Username:     author.Username,
		ProfileImage: author.ProfileImageURL,
		ProfileRev:   author.Rev,
		Caption:      caption,
		ImageURL:     imageURL,
		LikedBy:      []string{},
		CommentList:  []models.Comment{},
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, docstore.CollectionPosts, post.ID, docstore.MustEncode(post)); err != nil {
		return nil, err
	}
	if err := s.profiles.IndexPost(ctx, userID, post.ID); err != nil {
		// The post document exists; the sweep will re-index it.
		s.log.LogError(ctx, err, "index_post")
	}

	s.log.LogWrite(ctx, map[string]interface{}{"post_id": post.ID, "user_id": userID})
	s.publish(ctx, models.FeedEvent{Type: models.FeedEventPostCreated, PostID: post.ID, UserID: userID})
	return post, nil
}

// GetPost returns a single post.
func (s *Service) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(postID), &post, cache.PostTTL, func() error {
		doc, err := s.store.Get(ctx, docstore.CollectionPosts, postID)
		if err != nil {
			return err
		}
		return docstore.Decode(doc, &post)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, models.NewNotFoundError("post", postID)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPosts returns all posts, newest first.
func (s *Service) GetPosts(ctx context.Context) ([]*models.Post, error) {
	docs, err := s.store.List(ctx, docstore.CollectionPosts)
	if err != nil {
		return nil, err
	}
	return sortPosts(docs)
}

// GetUserPosts returns one user's posts, newest first.
func (s *Service) GetUserPosts(ctx context.Context, userID string) ([]*models.Post, error) {
	docs, err := s.store.Query(ctx, docstore.CollectionPosts, docstore.Where("user_id", "==", userID))
	if err != nil {
		return nil, err
	}
	return sortPosts(docs)
}

// DeletePost removes a post. Only the author may delete it.
func (s *Service) DeletePost(ctx context.Context, postID, userID string) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return models.NewForbiddenError("only the author can delete a post")
	}

	if err := s.store.Delete(ctx, docstore.CollectionPosts, postID); err != nil {
		return err
	}
	err = s.store.Apply(ctx, docstore.CollectionProfiles, userID, docstore.Update{
		"post_list": docstore.ArrayRemove(postID),
		"posts":     docstore.ArrayLen("post_list"),
	})
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		s.log.LogError(ctx, err, "unindex_post")
	}
	cache.InvalidatePost(ctx, postID)
	cache.InvalidateProfile(ctx, userID)
	s.publish(ctx, models.FeedEvent{Type: models.FeedEventPostDeleted, PostID: postID, UserID: userID})
	return nil
}

// ToggleLike adds the user to the post's liked-by list, or removes them if
// already present. The likes counter is re-derived from the list in the
// same atomic update, so it always equals the list length, even when two
// users toggle concurrently.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (*models.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	update := docstore.Update{"likes": docstore.ArrayLen("liked_by")}
	if post.LikedByUser(userID) {
		update["liked_by"] = docstore.ArrayRemove(userID)
	} else {
		update["liked_by"] = docstore.ArrayUnion(userID)
	}

	if err := s.store.Apply(ctx, docstore.CollectionPosts, postID, update); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("post", postID)
		}
		return nil, err
	}
	cache.InvalidatePost(ctx, postID)
	s.publish(ctx, models.FeedEvent{Type: models.FeedEventLikeToggled, PostID: postID, UserID: userID})
	return s.GetPost(ctx, postID)
}

// AddComment appends a comment carrying a snapshot of the commenter's
// identity. The comments counter is re-derived from the embedded list in
// the same atomic update.
func (s *Service) AddComment(ctx context.Context, postID, userID, text string) (*models.Comment, error) {
	if err := validation.ValidateCommentText(text); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	author, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return nil, models.NewValidationError("a profile is required before commenting")
	}

	now := time.Now().UTC()
	comment := models.Comment{
		ID:           models.NewCommentID(now, userID),
		UserID:       userID,
		Username:     author.Username,
		ProfileImage: author.ProfileImageURL,
		ProfileRev:   author.Rev,
		Text:         text,
		Timestamp:    now,
	}

	err = s.store.Apply(ctx, docstore.CollectionPosts, postID, docstore.Update{
		"comment_list": docstore.ArrayUnion(docstore.MustEncode(comment)),
		"comments":     docstore.ArrayLen("comment_list"),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, models.NewNotFoundError("post", postID)
	}
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, postID)
	s.publish(ctx, models.FeedEvent{Type: models.FeedEventCommentAdded, PostID: postID, UserID: userID})
	return &comment, nil
}

// DeleteComment removes a comment from a post. Only the comment's author
// may remove it; the check happens here, at the store boundary, not in the
// transport layer.
func (s *Service) DeleteComment(ctx context.Context, postID, userID, commentID string) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}

	var target *models.Comment
	for i := range post.CommentList {
		if post.CommentList[i].ID == commentID {
			target = &post.CommentList[i]
			break
		}
	}
	if target == nil {
		return models.NewNotFoundError("comment", commentID)
	}
	if target.UserID != userID {
		return models.NewForbiddenError("only the author can delete a comment")
	}

	// Remove by id, not by value: propagation may rewrite the comment's
	// denormalized author fields between our read and this apply, and a
	// whole-value match would then silently miss.
	err = s.store.Apply(ctx, docstore.CollectionPosts, postID, docstore.Update{
		"comment_list": docstore.ArrayRemoveByKey("id", commentID),
		"comments":     docstore.ArrayLen("comment_list"),
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, postID)
	return nil
}

// GetComments returns a post's comments, oldest first.
func (s *Service) GetComments(ctx context.Context, postID string) ([]models.Comment, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	comments := make([]models.Comment, len(post.CommentList))
	copy(comments, post.CommentList)
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].Timestamp.Before(comments[j].Timestamp)
	})
	return comments, nil
}

// SubscribeToAll registers fn to receive the full post feed, newest first.
// fn runs once immediately and again after every content change. Each
// snapshot reloads the whole collection; there is no pagination.
// The returned function unsubscribes fn.
func (s *Service) SubscribeToAll(ctx context.Context, fn func([]*models.Post)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	if posts, err := s.GetPosts(ctx); err == nil {
		fn(posts)
	}

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// PushSnapshot rebuilds the feed snapshot and hands it to every
// subscriber. The notifier calls this after a feed event is delivered,
// whether it originated locally or on another instance.
func (s *Service) PushSnapshot(ctx context.Context) {
	s.subMu.Lock()
	fns := make([]func([]*models.Post), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	if len(fns) == 0 {
		return
	}
	posts, err := s.GetPosts(ctx)
	if err != nil {
		s.log.LogError(ctx, err, "push_snapshot")
		return
	}
	for _, fn := range fns {
		fn(posts)
	}
}

func (s *Service) publish(ctx context.Context, event models.FeedEvent) {
	if s.events == nil {
		return
	}
	event.At = time.Now().UTC()
	s.events.Publish(ctx, event)
	observability.FeedEvents.WithLabelValues(string(event.Type)).Inc()
}

func sortPosts(docs []docstore.Document) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(docs))
	for _, doc := range docs {
		var post models.Post
		if err := docstore.Decode(doc, &post); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}
