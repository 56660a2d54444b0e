// Command forumctl runs maintenance tasks against a forum database.
//
// Usage:
//
//	forumctl repair   recompute drifted topic and board counters
//	forumctl stats    print forum-wide counts
//
// Configuration is read from the environment:
//
//	FORUM_POSTGRES_DSN   PostgreSQL connection string (required)
//	FORUM_REDIS_ADDR     Redis address for the listing cache and events (optional)
//	FORUM_TABLE_PREFIX   table name prefix (default "forum_")
//	FORUM_LOG_LEVEL      debug, info, warn or error (default info)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rbaliyan/forum"
	rediscache "github.com/rbaliyan/forum/cache/redis"
	"github.com/rbaliyan/forum/store/postgres"
)

type config struct {
	PostgresDSN string
	RedisAddr   string
	TablePrefix string
	LogLevel    slog.Level
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadConfig() (config, error) {
	cfg := config{
		PostgresDSN: os.Getenv("FORUM_POSTGRES_DSN"),
		RedisAddr:   os.Getenv("FORUM_REDIS_ADDR"),
		TablePrefix: getenv("FORUM_TABLE_PREFIX", postgres.DefaultTablePrefix),
	}
	if cfg.PostgresDSN == "" {
		return cfg, errors.New("FORUM_POSTGRES_DSN is required")
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("FORUM_LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("FORUM_LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: forumctl repair|stats")
		os.Exit(2)
	}
	cmd := os.Args[1]

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "forumctl:", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, logger); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, cfg config, logger *slog.Logger) error {
	if cmd != "repair" && cmd != "stats" {
		return fmt.Errorf("unknown command %q", cmd)
	}

	db, err := sqlx.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts := []forum.Option{
		forum.WithStore(postgres.New(db, postgres.WithTablePrefix(cfg.TablePrefix), postgres.WithLogger(logger))),
		forum.WithLogger(logger),
		forum.WithServiceName("forumctl"),
	}
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		c, err := rediscache.New(client, rediscache.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		opts = append(opts, forum.WithCache(c), forum.WithRedisClient(client))
	}

	svc, err := forum.NewService(opts...)
	if err != nil {
		return err
	}
	if err := svc.Connect(ctx); err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	var out any
	switch cmd {
	case "repair":
		res, err := svc.RepairPointers(ctx)
		if err != nil {
			return err
		}
		logger.Info("repair finished", "topics", len(res.FixedTopics), "boards", len(res.FixedBoards))
		out = res
	case "stats":
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		out = stats
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
