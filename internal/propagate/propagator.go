// Package propagate fans profile identity edits out to every denormalized
// copy: the author fields embedded in posts and in comments. Fan-out is
// concurrent per target document, skips documents that already carry the
// new value, and never rolls back partial progress; the reconciliation
// sweep repairs whatever a failed fan-out left behind.
package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"beacon/internal/cache"
	"beacon/internal/docstore"
	"beacon/internal/models"
	"beacon/internal/observability"
)

// maxConcurrentWrites bounds the per-fan-out write parallelism so a user
// with thousands of posts cannot saturate the store.
const maxConcurrentWrites = 16

// Propagator pushes identity changes into denormalized copies.
type Propagator struct {
	store docstore.Store
	log   *observability.StoreLogger

	// retry controls per-document write retries. Zero means no retries.
	maxRetries uint
}

// New creates a propagator with a small per-write retry budget.
func New(store docstore.Store) *Propagator {
	return &Propagator{
		store:      store,
		log:        observability.NewStoreLogger(docstore.CollectionPosts),
		maxRetries: 3,
	}
}

// PropagateUsername rewrites the author username on every post the user
// owns and on every comment they authored anywhere, stamping each copy
// with the profile revision that produced it. Post copies and comment
// copies are updated in sequence; within each phase targets are written
// concurrently. All failures are collected; successes stand.
func (p *Propagator) PropagateUsername(ctx context.Context, userID, newUsername string, rev int64) error {
	postsErr := p.updatePosts(ctx, userID, docstore.Update{
		"username":    newUsername,
		"profile_rev": rev,
	})
	commentsErr := p.updateComments(ctx, userID, func(c *models.Comment) {
		c.Username = newUsername
		c.ProfileRev = rev
	})
	return errors.Join(postsErr, commentsErr)
}

// PropagateAvatar rewrites the author avatar URL on the user's posts and
// comments, same shape as PropagateUsername.
func (p *Propagator) PropagateAvatar(ctx context.Context, userID, newAvatarURL string, rev int64) error {
	postsErr := p.updatePosts(ctx, userID, docstore.Update{
		"profile_image": newAvatarURL,
		"profile_rev":   rev,
	})
	commentsErr := p.updateComments(ctx, userID, func(c *models.Comment) {
		c.ProfileImage = newAvatarURL
		c.ProfileRev = rev
	})
	return errors.Join(postsErr, commentsErr)
}

// updatePosts applies fields to every post in the user's authoritative
// post index. Posts already carrying an equal or newer revision are
// skipped rather than rewritten.
func (p *Propagator) updatePosts(ctx context.Context, userID string, fields docstore.Update) error {
	profileDoc, err := p.store.Get(ctx, docstore.CollectionProfiles, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var profile models.Profile
	if err := docstore.Decode(profileDoc, &profile); err != nil {
		return err
	}

	targetRev, _ := fields["profile_rev"].(int64)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWrites)
	for _, postID := range profile.PostList {
		postID := postID
		g.Go(func() error {
			doc, err := p.store.Get(gctx, docstore.CollectionPosts, postID)
			if errors.Is(err, docstore.ErrNotFound) {
				// Stale index entry; the sweep handles it.
				observability.PropagationSkips.WithLabelValues("post").Inc()
				return nil
			}
			if err != nil {
				observability.PropagationFailures.WithLabelValues("post").Inc()
				return fmt.Errorf("post %s: %w", postID, err)
			}
			if stale(doc, targetRev) {
				observability.PropagationSkips.WithLabelValues("post").Inc()
				return nil
			}
			if err := p.applyWithRetry(gctx, docstore.CollectionPosts, postID, fields); err != nil {
				observability.PropagationFailures.WithLabelValues("post").Inc()
				return fmt.Errorf("post %s: %w", postID, err)
			}
			cache.InvalidatePost(gctx, postID)
			observability.PropagationWrites.WithLabelValues("post").Inc()
			return nil
		})
	}
	err = g.Wait()
	p.log.LogWrite(ctx, map[string]interface{}{
		"op": "fan_out_posts", "user_id": userID, "targets": len(profile.PostList),
	})
	return err
}

// updateComments scans every post, rewrites the user's comments through
// mutate, and writes back only posts whose comment list actually changed.
// The serialized before/after comparison is what makes repeated runs
// idempotent: an already-propagated post costs a read, never a write.
func (p *Propagator) updateComments(ctx context.Context, userID string, mutate func(*models.Comment)) error {
	docs, err := p.store.List(ctx, docstore.CollectionPosts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWrites)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			var post models.Post
			if err := docstore.Decode(doc, &post); err != nil {
				return err
			}
			before, err := json.Marshal(post.CommentList)
			if err != nil {
				return err
			}
			touched := false
			for i := range post.CommentList {
				if post.CommentList[i].UserID == userID {
					mutate(&post.CommentList[i])
					touched = true
				}
			}
			if !touched {
				return nil
			}
			after, err := json.Marshal(post.CommentList)
			if err != nil {
				return err
			}
			if string(before) == string(after) {
				observability.PropagationSkips.WithLabelValues("comment").Inc()
				return nil
			}
			update := docstore.Update{
				"comment_list": post.CommentList,
				"comments":     docstore.ArrayLen("comment_list"),
			}
			if err := p.applyWithRetry(gctx, docstore.CollectionPosts, post.ID, update); err != nil {
				observability.PropagationFailures.WithLabelValues("comment").Inc()
				return fmt.Errorf("post %s comments: %w", post.ID, err)
			}
			cache.InvalidatePost(gctx, post.ID)
			observability.PropagationWrites.WithLabelValues("comment").Inc()
			return nil
		})
	}
	return g.Wait()
}

// applyWithRetry retries transient write failures with exponential backoff.
func (p *Propagator) applyWithRetry(ctx context.Context, collection, id string, fields docstore.Update) error {
	op := func() (struct{}, error) {
		err := p.store.Apply(ctx, collection, id, fields)
		if errors.Is(err, docstore.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxRetries+1),
	)
	return err
}

// stale reports whether the document already carries a revision at or past
// targetRev, meaning a newer edit has already been propagated to it.
func stale(doc docstore.Document, targetRev int64) bool {
	if targetRev == 0 {
		return false
	}
	switch v := doc["profile_rev"].(type) {
	case int64:
		return v >= targetRev
	case float64:
		return int64(v) >= targetRev
	case json.Number:
		n, err := v.Int64()
		return err == nil && n >= targetRev
	default:
		return false
	}
}
