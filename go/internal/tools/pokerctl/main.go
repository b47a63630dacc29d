package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdev12/planningpoker/go/internal/dbconfig"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	defaults := store.DefaultConfig()

	return &cli.App{
		Name:  "pokerctl",
		Usage: "Inspect and reset planning poker sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "session store `backend` (memory, nats, redis, postgres, sqlite)",
				Value:   string(store.BackendNATS),
				EnvVars: []string{"STORE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "session `id`",
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Value:   defaults.NATS.URL,
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-bucket",
				Value:   defaults.NATS.Bucket,
				EnvVars: []string{"NATS_BUCKET"},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   defaults.Redis.Addr,
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-key",
				Value:   defaults.Redis.Key,
				EnvVars: []string{"REDIS_KEY"},
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Value:   defaults.SQLite.Path,
				EnvVars: []string{"SQLITE_PATH"},
			},
			&cli.StringFlag{
				Name:        "dsn",
				Usage:       "Postgres `url`; defaults to one built from DB_*",
				EnvVars:     []string{"POKER_DSN"},
				DefaultText: "from DB_*",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "warn",
				Usage:   "log `level` (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the session as everyone sees it",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print the view as JSON"},
				},
				Action: withRepository(showSession),
			},
			{
				Name:   "clear-votes",
				Usage:  "delete votes, reveal flag, countdown and lock",
				Action: withRepository(controllerAction((*poker.Controller).ClearVotes)),
			},
			{
				Name:   "clear-users",
				Usage:  "delete every joined user",
				Action: withRepository(controllerAction((*poker.Controller).ClearUsers)),
			},
			{
				Name:   "clean",
				Usage:  "delete votes and users",
				Action: withRepository(controllerAction((*poker.Controller).CleanSession)),
			},
			{
				Name:   "reveal",
				Usage:  "reveal votes as a moderator",
				Flags:  []cli.Flag{tokenFlag()},
				Action: withRepository(moderatorAction((*poker.Controller).Reveal)),
			},
			{
				Name:   "hide",
				Usage:  "hide votes as a moderator",
				Flags:  []cli.Flag{tokenFlag()},
				Action: withRepository(moderatorAction((*poker.Controller).Hide)),
			},
			{
				Name:   "watch",
				Usage:  "print session changes until interrupted",
				Action: withRepository(watchSession),
			},
		},
	}
}

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "token",
		Aliases:  []string{"t"},
		Usage:    "moderator identity `token` (name|role|id)",
		Required: true,
		EnvVars:  []string{"POKER_TOKEN"},
	}
}

func storeConfig(c *cli.Context) store.Config {
	cfg := store.DefaultConfig()
	cfg.Backend = store.Backend(c.String("backend"))
	cfg.NATS.URL = c.String("nats-url")
	cfg.NATS.Bucket = c.String("nats-bucket")
	cfg.Redis.Addr = c.String("redis-addr")
	cfg.Redis.Key = c.String("redis-key")
	cfg.SQLite.Path = c.String("sqlite-path")
	cfg.Postgres.DSN = c.String("dsn")
	if cfg.Postgres.DSN == "" {
		cfg.Postgres.DSN = dbconfig.NewConfigFromEnv().DSN()
	}
	return cfg
}

type repositoryAction func(ctx context.Context, c *cli.Context, repo *poker.Repository, sessionID string) error

// withRepository opens the store for the duration of one command
func withRepository(action repositoryAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		kv, err := store.Open(ctx, storeConfig(c))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer kv.Close()

		return action(ctx, c, poker.NewRepository(kv), c.String("session"))
	}
}

func controllerAction(op func(*poker.Controller, context.Context) error) repositoryAction {
	return func(ctx context.Context, c *cli.Context, repo *poker.Repository, sessionID string) error {
		if err := op(poker.NewController(repo, sessionID), ctx); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Fprintf(c.App.Writer, "%s: done\n", sessionID)
		return nil
	}
}

func moderatorAction(op func(*poker.Controller, context.Context) error) repositoryAction {
	return func(ctx context.Context, c *cli.Context, repo *poker.Repository, sessionID string) error {
		controller := poker.NewController(repo, sessionID)
		defer controller.Close()

		if _, err := controller.Restore(ctx, c.String("token")); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if err := op(controller, ctx); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Fprintf(c.App.Writer, "%s: done\n", sessionID)
		return nil
	}
}

func showSession(ctx context.Context, c *cli.Context, repo *poker.Repository, sessionID string) error {
	snap, err := repo.Snapshot(ctx, sessionID)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	view := poker.RenderView(snap, nil, poker.DefaultScale)

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printView(c.App.Writer, view)
	return nil
}

func printView(w io.Writer, view poker.View) {
	fmt.Fprintf(w, "session %s (revealed: %t, voting open: %t", view.SessionID, view.RevealVotes, view.VotingOpen)
	if view.Countdown > 0 {
		fmt.Fprintf(w, ", countdown: %ds", view.Countdown)
	}
	fmt.Fprintln(w, ")")

	fmt.Fprintf(w, "users (%d):\n", len(view.Users))
	for _, u := range view.Users {
		mark := " "
		if u.Voted {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s (%s)\n", mark, u.Name, u.Role)
	}

	fmt.Fprintf(w, "votes (%d):\n", len(view.Votes))
	for _, v := range view.Votes {
		fmt.Fprintf(w, "  %s: %s\n", v.Name, v.Value)
	}

	if s := view.Stats; s != nil {
		fmt.Fprintf(w, "mean %.2f, closest %d, all same %t\n", s.Mean, s.Closest, s.AllSame)
	}
}

func watchSession(ctx context.Context, c *cli.Context, repo *poker.Repository, sessionID string) error {
	events, err := repo.Watch(ctx, sessionID)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(c.App.Writer, "watching %s, interrupt to stop\n", sessionID)
	for ev := range events {
		fmt.Fprintf(c.App.Writer, "%-6s %s\n", ev.Op, ev.Key)
	}
	return nil
}
