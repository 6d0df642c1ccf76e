// Package seed creates demo data for development and testing: profiles,
// posts with likes and comments, and chats with a bit of history.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"beacon/internal/chat"
	"beacon/internal/content"
	"beacon/internal/models"
	"beacon/internal/profile"
)

// Options configures how much data the seeder creates.
type Options struct {
	NumUsers        int
	PostsPerUser    int
	CommentsPerPost int
	LikeProbability float64
	PersonalChats   int
	MessagesPerChat int
	RandomSeed      int64
}

// DefaultOptions returns a small but lively data set.
func DefaultOptions() Options {
	return Options{
		NumUsers:        12,
		PostsPerUser:    3,
		CommentsPerPost: 2,
		LikeProbability: 0.4,
		PersonalChats:   6,
		MessagesPerChat: 5,
	}
}

// Seeder drives the domain services to create realistic data, so seeded
// documents carry the same snapshots and derived counters as real ones.
type Seeder struct {
	directory *profile.Directory
	contents  *content.Service
	chats     *chat.Service
	opts      Options
	rng       *rand.Rand
}

// New creates a seeder over the given services.
func New(directory *profile.Directory, contents *content.Service, chats *chat.Service, opts Options) *Seeder {
	seedValue := opts.RandomSeed
	if seedValue == 0 {
		seedValue = time.Now().UnixNano()
	}
	gofakeit.Seed(seedValue)
	return &Seeder{
		directory: directory,
		contents:  contents,
		chats:     chats,
		opts:      opts,
		rng:       rand.New(rand.NewSource(seedValue)),
	}
}

// Run populates the store and returns the created user ids.
func (s *Seeder) Run(ctx context.Context) ([]string, error) {
	userIDs, err := s.seedProfiles(ctx)
	if err != nil {
		return nil, err
	}

	postIDs, err := s.seedPosts(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if err := s.seedEngagement(ctx, userIDs, postIDs); err != nil {
		return nil, err
	}
	if err := s.seedChats(ctx, userIDs); err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (s *Seeder) seedProfiles(ctx context.Context) ([]string, error) {
	userIDs := make([]string, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		userID := fmt.Sprintf("seed-user-%03d", i)
		username := s.username(i)
		displayName := gofakeit.Name()

		created, err := s.directory.Create(ctx, userID, username, displayName)
		if err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", username, err)
		}

		bio := gofakeit.Sentence(8)
		if len(bio) > 280 {
			bio = bio[:280]
		}
		if _, err := s.directory.Update(ctx, created.UserID, models.ProfileUpdate{Bio: &bio}); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

func (s *Seeder) seedPosts(ctx context.Context, userIDs []string) ([]string, error) {
	var postIDs []string
	for _, userID := range userIDs {
		for i := 0; i < s.opts.PostsPerUser; i++ {
			caption := gofakeit.Sentence(s.rng.Intn(10) + 3)
			post, err := s.contents.CreatePost(ctx, userID, caption, nil)
			if err != nil {
				return nil, fmt.Errorf("seed post for %s: %w", userID, err)
			}
			postIDs = append(postIDs, post.ID)
		}
	}
	return postIDs, nil
}

func (s *Seeder) seedEngagement(ctx context.Context, userIDs, postIDs []string) error {
	for _, postID := range postIDs {
		for _, userID := range userIDs {
			if s.rng.Float64() < s.opts.LikeProbability {
				if _, err := s.contents.ToggleLike(ctx, postID, userID); err != nil {
					return err
				}
			}
		}
		for i := 0; i < s.opts.CommentsPerPost; i++ {
			commenter := userIDs[s.rng.Intn(len(userIDs))]
			text := gofakeit.Sentence(s.rng.Intn(8) + 2)
			if _, err := s.contents.AddComment(ctx, postID, commenter, text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedChats(ctx context.Context, userIDs []string) error {
	if len(userIDs) < 2 {
		return nil
	}
	for i := 0; i < s.opts.PersonalChats; i++ {
		a := userIDs[s.rng.Intn(len(userIDs))]
		b := userIDs[s.rng.Intn(len(userIDs))]
		if a == b {
			continue
		}
		created, err := s.chats.CreateChat(ctx, models.ChatTypePersonal, a, []string{b}, "")
		if err != nil {
			return err
		}
		members := []string{a, b}
		for m := 0; m < s.opts.MessagesPerChat; m++ {
			sender := members[s.rng.Intn(2)]
			if _, err := s.chats.SendMessage(ctx, created.ID, sender, gofakeit.HipsterSentence(s.rng.Intn(6)+2)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) username(i int) string {
	base := strings.ToLower(gofakeit.Username())
	cleaned := make([]rune, 0, len(base))
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			cleaned = append(cleaned, r)
		}
	}
	name := strings.Trim(string(cleaned), ".")
	if len(name) > 18 {
		name = name[:18]
	}
	if name == "" {
		name = "user"
	}
	// Suffix keeps names unique and validation-safe regardless of what
	// the generator produced.
	return fmt.Sprintf("%s_%03d", name, i)
}
