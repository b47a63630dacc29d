package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/planningpoker/go/internal/dbconfig"
	"github.com/mcdev12/planningpoker/go/internal/store"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping %s@%s/%s: %v\n", cfg.User, cfg.Host, cfg.Database, err)
		os.Exit(1)
	}

	// 2) Apply the session store schema
	if _, err := pool.Exec(ctx, store.PostgresSchema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Print summary
	var rows int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM poker_kv`).Scan(&rows); err != nil {
		fmt.Fprintf(os.Stderr, "count rows: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Schema up to date on %s: poker_kv holds %d keys\n", cfg.Database, rows)
}
