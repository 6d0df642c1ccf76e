// Package profile owns the canonical identity record for each user. Every
// other component reads and writes identity fields through the Directory;
// denormalized copies elsewhere are downstream of it.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"beacon/internal/blob"
	"beacon/internal/cache"
	"beacon/internal/docstore"
	"beacon/internal/images"
	"beacon/internal/models"
	"beacon/internal/observability"
	"beacon/internal/validation"
)

// ImageKind selects which profile image an upload replaces.
type ImageKind string

const (
	// ImageKindAvatar is the profile (avatar) image.
	ImageKindAvatar ImageKind = "avatar"
	// ImageKindHeader is the profile header image.
	ImageKindHeader ImageKind = "header"
)

// Propagator pushes identity edits out to every denormalized copy. The
// Directory triggers it after username or avatar changes; a nil propagator
// means edits are persisted without fan-out (tests, tooling).
type Propagator interface {
	PropagateUsername(ctx context.Context, userID, newUsername string, rev int64) error
	PropagateAvatar(ctx context.Context, userID, newAvatarURL string, rev int64) error
}

// Directory is the profile service.
type Directory struct {
	store      docstore.Store
	blobs      blob.Store
	processor  *images.Processor
	propagator Propagator
	log        *observability.StoreLogger
}

// NewDirectory creates a profile directory over the given collaborators.
// blobs and propagator may be nil when the corresponding features are not
// needed (e.g. in tests that never upload images).
func NewDirectory(store docstore.Store, blobs blob.Store, propagator Propagator) *Directory {
	return &Directory{
		store:      store,
		blobs:      blobs,
		processor:  images.NewProcessor(images.AvatarMaxDimension),
		propagator: propagator,
		log:        observability.NewStoreLogger(docstore.CollectionProfiles),
	}
}

// Create makes the profile record for a new user. The username is reserved
// atomically first, so two concurrent signups with the same name cannot
// both succeed.
func (d *Directory) Create(ctx context.Context, userID, username, displayName string) (*models.Profile, error) {
	if userID == "" {
		return nil, models.NewValidationError("user id is required")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	normalized := validation.NormalizeUsername(username)
	if err := d.reserveUsername(ctx, normalized, userID); err != nil {
		return nil, err
	}

	profile := &models.Profile{
		UserID:      userID,
		Username:    normalized,
		DisplayName: displayName,
		FriendsList: []string{},
		PostList:    []string{},
		Rev:         1,
		CreatedAt:   time.Now().UTC(),
	}

	err := d.store.Create(ctx, docstore.CollectionProfiles, userID, docstore.MustEncode(profile))
	if errors.Is(err, docstore.ErrExists) {
		d.releaseUsername(ctx, normalized)
		return nil, models.NewConflictError("profile already exists for this user")
	}
	if err != nil {
		d.releaseUsername(ctx, normalized)
		return nil, err
	}

	d.log.LogWrite(ctx, map[string]interface{}{"user_id": userID, "username": normalized})
	return profile, nil
}

// Get returns the profile for userID, or nil when none exists. A missing
// profile is an absent value, not an error.
func (d *Directory) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := cache.Aside(ctx, cache.ProfileKey(userID), &profile, cache.ProfileTTL, func() error {
		doc, err := d.store.Get(ctx, docstore.CollectionProfiles, userID)
		if err != nil {
			return err
		}
		return docstore.Decode(doc, &profile)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update merges the partial edit into the stored profile. If no profile
// exists yet it creates one with defaults first (upsert semantics). A
// username or avatar change bumps the profile revision and triggers
// propagation into every denormalized copy; propagation errors surface to
// the caller, but updates already applied downstream are not rolled back.
func (d *Directory) Update(ctx context.Context, userID string, update models.ProfileUpdate) (*models.Profile, error) {
	if update.Empty() {
		return d.mustGet(ctx, userID)
	}
	if err := d.validateUpdate(update); err != nil {
		return nil, err
	}

	current, err := d.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		// Upsert path: create a default profile, then merge into it.
		username := ""
		if update.Username != nil {
			username = *update.Username
		}
		displayName := ""
		if update.DisplayName != nil {
			displayName = *update.DisplayName
		}
		if username == "" || displayName == "" {
			return nil, models.NewValidationError("username and display name are required to create a profile")
		}
		current, err = d.Create(ctx, userID, username, displayName)
		if err != nil {
			return nil, err
		}
	}

	usernameChanged := false
	newUsername := current.Username
	if update.Username != nil {
		candidate := validation.NormalizeUsername(*update.Username)
		if candidate != current.Username {
			if err := d.reserveUsername(ctx, candidate, userID); err != nil {
				return nil, err
			}
			usernameChanged = true
			newUsername = candidate
		}
	}

	avatarChanged := update.ProfileImageURL != nil && *update.ProfileImageURL != current.ProfileImageURL

	fields := docstore.Update{}
	if usernameChanged {
		fields["username"] = newUsername
	}
	if update.DisplayName != nil {
		fields["display_name"] = *update.DisplayName
	}
	if update.Bio != nil {
		fields["bio"] = *update.Bio
	}
	if update.HeaderImageURL != nil {
		fields["header_image_url"] = *update.HeaderImageURL
	}
	if update.ProfileImageURL != nil {
		fields["profile_image_url"] = *update.ProfileImageURL
	}

	newRev := current.Rev
	if usernameChanged || avatarChanged {
		fields["rev"] = docstore.Increment(1)
		newRev = current.Rev + 1
	}

	if len(fields) > 0 {
		if err := d.store.Apply(ctx, docstore.CollectionProfiles, userID, fields); err != nil {
			if usernameChanged {
				d.releaseUsername(ctx, newUsername)
			}
			return nil, err
		}
	}
	cache.InvalidateProfile(ctx, userID)

	if usernameChanged {
		d.releaseUsername(ctx, current.Username)
		d.log.LogWrite(ctx, map[string]interface{}{
			"user_id": userID, "username": newUsername, "rev": newRev,
		})
	}

	// Fan the identity edit out to denormalized copies. Best-effort: a
	// failure here leaves old values visible on some documents until the
	// next edit or the reconciliation sweep.
	if d.propagator != nil {
		if usernameChanged {
			if err := d.propagator.PropagateUsername(ctx, userID, newUsername, newRev); err != nil {
				return nil, fmt.Errorf("profile updated but username propagation incomplete: %w", err)
			}
		}
		if avatarChanged {
			if err := d.propagator.PropagateAvatar(ctx, userID, *update.ProfileImageURL, newRev); err != nil {
				return nil, fmt.Errorf("profile updated but avatar propagation incomplete: %w", err)
			}
		}
	}

	return d.mustGet(ctx, userID)
}

// UsernameExists reports whether the username is taken. The reservation
// index makes this a point read instead of a profile scan; the check alone
// is still not atomic with a later write, which is why Create and Update
// reserve instead of checking.
func (d *Directory) UsernameExists(ctx context.Context, candidate string) (bool, error) {
	normalized := validation.NormalizeUsername(candidate)
	_, err := d.store.Get(ctx, docstore.CollectionUsernames, normalized)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UploadImage stores a new avatar or header image and points the profile
// at it. Avatar changes propagate to denormalized copies via Update.
func (d *Directory) UploadImage(ctx context.Context, userID string, data []byte, kind ImageKind) (string, error) {
	if d.blobs == nil {
		return "", models.NewInternalError(errors.New("blob storage not configured"))
	}
	if kind != ImageKindAvatar && kind != ImageKindHeader {
		return "", models.NewValidationError("image kind must be avatar or header")
	}

	processed, err := d.processor.Process(data)
	if err != nil {
		return "", models.NewValidationError(err.Error())
	}

	key := fmt.Sprintf("profile_images/%s/%s_%d.webp", userID, kind, time.Now().UnixMilli())
	url, err := d.blobs.Upload(ctx, key, processed.Data, processed.ContentType)
	if err != nil {
		return "", err
	}

	update := models.ProfileUpdate{}
	if kind == ImageKindAvatar {
		update.ProfileImageURL = &url
	} else {
		update.HeaderImageURL = &url
	}
	if _, err := d.Update(ctx, userID, update); err != nil {
		return "", err
	}
	return url, nil
}

// IndexPost appends a post id to the owner's authoritative post index and
// re-derives the posts counter from the list in the same atomic update.
func (d *Directory) IndexPost(ctx context.Context, userID, postID string) error {
	err := d.store.Apply(ctx, docstore.CollectionProfiles, userID, docstore.Update{
		"post_list": docstore.ArrayUnion(postID),
		"posts":     docstore.ArrayLen("post_list"),
	})
	if err != nil {
		return err
	}
	cache.InvalidateProfile(ctx, userID)
	return nil
}

// AddFriend links two profiles symmetrically. The two writes are separate
// documents and therefore not atomic together.
func (d *Directory) AddFriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return models.NewValidationError("cannot friend yourself")
	}
	for _, pair := range [][2]string{{userID, friendID}, {friendID, userID}} {
		err := d.store.Apply(ctx, docstore.CollectionProfiles, pair[0], docstore.Update{
			"friends_list": docstore.ArrayUnion(pair[1]),
			"friends":      docstore.ArrayLen("friends_list"),
		})
		if errors.Is(err, docstore.ErrNotFound) {
			return models.NewNotFoundError("profile", pair[0])
		}
		if err != nil {
			return err
		}
		cache.InvalidateProfile(ctx, pair[0])
	}
	return nil
}

// RemoveFriend unlinks two profiles symmetrically.
func (d *Directory) RemoveFriend(ctx context.Context, userID, friendID string) error {
	for _, pair := range [][2]string{{userID, friendID}, {friendID, userID}} {
		err := d.store.Apply(ctx, docstore.CollectionProfiles, pair[0], docstore.Update{
			"friends_list": docstore.ArrayRemove(pair[1]),
			"friends":      docstore.ArrayLen("friends_list"),
		})
		if errors.Is(err, docstore.ErrNotFound) {
			return models.NewNotFoundError("profile", pair[0])
		}
		if err != nil {
			return err
		}
		cache.InvalidateProfile(ctx, pair[0])
	}
	return nil
}

// Search returns profiles whose username contains the query. This is a
// full scan; acceptable at current directory sizes.
func (d *Directory) Search(ctx context.Context, query string) ([]*models.Profile, error) {
	normalized := validation.NormalizeUsername(query)
	if normalized == "" {
		return nil, models.NewValidationError("search query is required")
	}
	docs, err := d.store.List(ctx, docstore.CollectionProfiles)
	if err != nil {
		return nil, err
	}
	var out []*models.Profile
	for _, doc := range docs {
		var p models.Profile
		if err := docstore.Decode(doc, &p); err != nil {
			return nil, err
		}
		if containsFold(p.Username, normalized) || containsFold(p.DisplayName, normalized) {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (d *Directory) validateUpdate(update models.ProfileUpdate) error {
	if update.Username != nil {
		if err := validation.ValidateUsername(*update.Username); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if update.DisplayName != nil {
		if err := validation.ValidateDisplayName(*update.DisplayName); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if update.Bio != nil {
		if err := validation.ValidateBio(*update.Bio); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	return nil
}

// reserveUsername claims a username atomically: insert-if-absent against
// the index keyed by the name itself. Exactly one concurrent claimant wins.
func (d *Directory) reserveUsername(ctx context.Context, normalized, userID string) error {
	err := d.store.Create(ctx, docstore.CollectionUsernames, normalized, docstore.Document{
		"user_id":     userID,
		"reserved_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, docstore.ErrExists) {
		// The same user re-claiming their own name is fine.
		doc, getErr := d.store.Get(ctx, docstore.CollectionUsernames, normalized)
		if getErr == nil {
			if owner, _ := doc["user_id"].(string); owner == userID {
				return nil
			}
		}
		return models.NewConflictError("username is already taken")
	}
	return err
}

func (d *Directory) releaseUsername(ctx context.Context, normalized string) {
	// Best-effort cleanup; a leaked reservation only blocks the name.
	_ = d.store.Delete(ctx, docstore.CollectionUsernames, normalized)
}

func (d *Directory) mustGet(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := d.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, models.NewNotFoundError("profile", userID)
	}
	return profile, nil
}

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), needle)
}
