// Command seed loads demo accounts, videos, subscriptions and watch history into
// the configured directory. It is a no-op when the demo accounts already exist.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/app"
	"vidtube/cmd/security/password"
)

type demoUser struct {
	username string
	email    string
	fullName string
}

var demoUsers = []demoUser{
	{username: "alice", email: "alice@example.com", fullName: "Alice Demo"},
	{username: "bob", email: "bob@example.com", fullName: "Bob Demo"},
}

func main() {
	pass := flag.String("password", "demo-password-1", "Password for every demo account")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if err := run(*pass, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(pass string, timeout time.Duration) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg := app.LoadConfig()
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dir, err := app.OpenDirectory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close(context.Background()) }()

	if _, err := dir.GetByUsername(ctx, demoUsers[0].username); err == nil {
		log.Info("seed.skip", "reason", "demo data present")
		return nil
	} else if !account.IsNotFound(err) {
		return err
	}

	pw, err := password.FromEnv()
	if err != nil {
		return err
	}
	hash, err := pw.Hash(pass)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	accounts := make([]account.Account, 0, len(demoUsers))
	for _, u := range demoUsers {
		acc, err := dir.Create(ctx, account.CreateInput{
			Username:     u.username,
			Email:        u.email,
			FullName:     u.fullName,
			PasswordHash: hash,
			AvatarURL:    "/media/demo-" + u.username + ".png",
			Now:          now,
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", u.username, err)
		}
		accounts = append(accounts, acc)
	}
	alice, bob := accounts[0], accounts[1]

	var videos []account.Video
	for i, title := range []string{"Getting started", "Behind the scenes"} {
		v, err := dir.CreateVideo(ctx, account.Video{
			OwnerID:         bob.ID,
			Title:           title,
			Description:     "Demo video " + title,
			ThumbnailURL:    fmt.Sprintf("/media/demo-thumb-%d.png", i+1),
			VideoURL:        fmt.Sprintf("/media/demo-video-%d.mp4", i+1),
			DurationSeconds: float64(60 * (i + 1)),
			CreatedAt:       now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			return fmt.Errorf("create video: %w", err)
		}
		videos = append(videos, v)
	}

	if err := dir.Subscribe(ctx, alice.ID, bob.ID, now); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for _, v := range videos {
		if err := dir.AppendWatchHistory(ctx, alice.ID, v.ID, now); err != nil {
			return fmt.Errorf("watch history: %w", err)
		}
	}

	log.Info("seed.ok", "accounts", len(accounts), "videos", len(videos))
	return nil
}
