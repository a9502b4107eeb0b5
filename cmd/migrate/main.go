package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civreg.org/internal/migrate"
	"civreg.org/internal/obs"
)

func main() {
	log := obs.Logger()
	var (
		dsn     = flag.String("dsn", os.Getenv("CIVREG_PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CIVREG_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.WithField("migration", name).Info("applied")
		}
		if err == nil && len(applied) == 0 {
			log.Info("schema is up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			log.WithField("migration", name).Info("rolled back")
		}
	case "status":
		var states []migrate.State
		states, err = mgr.Status(ctx)
		for _, s := range states {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %s\n", mark, s.Name)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}
