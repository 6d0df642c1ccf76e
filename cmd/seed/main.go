// Command seed populates the store with realistic data for development.
package main

import (
	"context"
	"flag"
	"log"

	"beacon/internal/config"
	"beacon/internal/seed"
	"beacon/internal/server"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of users to create")
	flag.IntVar(&opts.PostsPerUser, "posts", opts.PostsPerUser, "Posts per user")
	flag.IntVar(&opts.CommentsPerPost, "comments", opts.CommentsPerPost, "Comments per post")
	flag.Float64Var(&opts.LikeProbability, "likes", opts.LikeProbability, "Probability a user likes a given post")
	flag.IntVar(&opts.PersonalChats, "chats", opts.PersonalChats, "Number of personal chats to create")
	flag.IntVar(&opts.MessagesPerChat, "messages", opts.MessagesPerChat, "Messages per chat")
	flag.Int64Var(&opts.RandomSeed, "seed", 0, "Random seed (0 picks one from the clock)")
	flag.Parse()

	log.Println("Seeding data...")
	log.Printf("Target: %d users, %d posts each, %d comments per post\n",
		opts.NumUsers, opts.PostsPerUser, opts.CommentsPerPost)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to backends: %v", err)
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	s := seed.New(srv.Directory(), srv.Contents(), srv.Chats(), opts)
	userIDs, err := s.Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: created %d users with posts, comments, likes and chats", len(userIDs))
}
