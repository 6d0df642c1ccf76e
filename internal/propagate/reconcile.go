package propagate

import (
	"context"
	"errors"
	"time"

	"beacon/internal/cache"
	"beacon/internal/docstore"
	"beacon/internal/models"
	"beacon/internal/observability"
)

// Report summarizes one reconciliation sweep.
type Report struct {
	ProfilesScanned int `json:"profiles_scanned"`
	PostsScanned    int `json:"posts_scanned"`
	IndexRepairs    int `json:"index_repairs"`
	IdentityRepairs int `json:"identity_repairs"`
	CounterRepairs  int `json:"counter_repairs"`
	Errors          int `json:"errors"`
}

// Reconciler sweeps the content store and repairs denormalization drift:
// stale author copies left behind by failed fan-outs, post index entries
// missing from their owner's profile, and counters that disagree with the
// lists they are derived from.
type Reconciler struct {
	store docstore.Store
	log   *observability.StoreLogger
}

// NewReconciler creates a reconciler over the store.
func NewReconciler(store docstore.Store) *Reconciler {
	return &Reconciler{
		store: store,
		log:   observability.NewStoreLogger(docstore.CollectionPosts),
	}
}

// Run performs one full sweep and returns what it repaired. Repairs are
// applied as it goes; an error on one document is counted and the sweep
// continues.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	profiles, err := r.loadProfiles(ctx)
	if err != nil {
		return nil, err
	}
	report.ProfilesScanned = len(profiles)

	postDocs, err := r.store.List(ctx, docstore.CollectionPosts)
	if err != nil {
		return nil, err
	}
	report.PostsScanned = len(postDocs)

	indexed := map[string]map[string]bool{}
	for userID, p := range profiles {
		set := make(map[string]bool, len(p.PostList))
		for _, id := range p.PostList {
			set[id] = true
		}
		indexed[userID] = set
	}

	for _, doc := range postDocs {
		var post models.Post
		if err := docstore.Decode(doc, &post); err != nil {
			report.Errors++
			continue
		}
		r.repairPost(ctx, &post, profiles, report)

		// A post absent from its owner's index is invisible to fan-out.
		if _, ok := profiles[post.UserID]; ok && !indexed[post.UserID][post.ID] {
			err := r.store.Apply(ctx, docstore.CollectionProfiles, post.UserID, docstore.Update{
				"post_list": docstore.ArrayUnion(post.ID),
				"posts":     docstore.ArrayLen("post_list"),
			})
			if err != nil {
				report.Errors++
			} else {
				indexed[post.UserID][post.ID] = true
				cache.InvalidateProfile(ctx, post.UserID)
				report.IndexRepairs++
				observability.ReconcileRepairs.WithLabelValues("index").Inc()
			}
		}
	}

	r.log.LogWrite(ctx, map[string]interface{}{
		"op":               "reconcile",
		"profiles":         report.ProfilesScanned,
		"posts":            report.PostsScanned,
		"index_repairs":    report.IndexRepairs,
		"identity_repairs": report.IdentityRepairs,
		"counter_repairs":  report.CounterRepairs,
		"errors":           report.Errors,
	})
	return report, nil
}

// RunPeriodic sweeps on the given interval until the context is canceled.
func (r *Reconciler) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.LogError(ctx, err, "reconcile")
			}
		}
	}
}

// repairPost restores the post's denormalized author fields and derived
// counters from their sources of truth.
func (r *Reconciler) repairPost(ctx context.Context, post *models.Post, profiles map[string]*models.Profile, report *Report) {
	update := docstore.Update{}

	if owner, ok := profiles[post.UserID]; ok {
		if post.Username != owner.Username || post.ProfileImage != owner.ProfileImageURL || post.ProfileRev != owner.Rev {
			update["username"] = owner.Username
			update["profile_image"] = owner.ProfileImageURL
			update["profile_rev"] = owner.Rev
		}
	}

	commentsTouched := false
	for i := range post.CommentList {
		c := &post.CommentList[i]
		author, ok := profiles[c.UserID]
		if !ok {
			continue
		}
		if c.Username != author.Username || c.ProfileImage != author.ProfileImageURL || c.ProfileRev != author.Rev {
			c.Username = author.Username
			c.ProfileImage = author.ProfileImageURL
			c.ProfileRev = author.Rev
			commentsTouched = true
		}
	}
	if commentsTouched {
		update["comment_list"] = post.CommentList
	}

	counterDrift := post.Likes != len(post.LikedBy) || post.Comments != len(post.CommentList)
	if counterDrift || commentsTouched {
		update["likes"] = docstore.ArrayLen("liked_by")
		update["comments"] = docstore.ArrayLen("comment_list")
	}

	if len(update) == 0 {
		return
	}
	if err := r.store.Apply(ctx, docstore.CollectionPosts, post.ID, update); err != nil {
		report.Errors++
		return
	}
	cache.InvalidatePost(ctx, post.ID)
	if _, ok := update["username"]; ok {
		report.IdentityRepairs++
		observability.ReconcileRepairs.WithLabelValues("identity").Inc()
	}
	if commentsTouched {
		report.IdentityRepairs++
		observability.ReconcileRepairs.WithLabelValues("comment_identity").Inc()
	}
	if counterDrift {
		report.CounterRepairs++
		observability.ReconcileRepairs.WithLabelValues("counter").Inc()
	}
}

func (r *Reconciler) loadProfiles(ctx context.Context) (map[string]*models.Profile, error) {
	docs, err := r.store.List(ctx, docstore.CollectionProfiles)
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*models.Profile, len(docs))
	for _, doc := range docs {
		var p models.Profile
		if err := docstore.Decode(doc, &p); err != nil {
			return nil, err
		}
		profiles[p.UserID] = &p
	}
	return profiles, nil
}
