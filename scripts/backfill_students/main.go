package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/sma-classroom-api/internal/repository"
	"github.com/noah-isme/sma-classroom-api/internal/service"
	"github.com/noah-isme/sma-classroom-api/pkg/config"
	"github.com/noah-isme/sma-classroom-api/pkg/database"
	"github.com/noah-isme/sma-classroom-api/pkg/logger"
)

func main() {
	var (
		dryRun  bool
		timeout time.Duration
	)

	flag.BoolVar(&dryRun, "dry-run", true, "only count incomplete student profiles")
	flag.DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	svc := service.NewStudentService(repository.NewStudentRepository(db), nil, logr)
	report, err := svc.Backfill(ctx, dryRun)
	if err != nil {
		log.Fatalf("backfill failed: %v", err)
	}

	fmt.Printf("Incomplete profiles: %d\n", report.Incomplete)
	if report.DryRun {
		fmt.Println("Dry run, nothing written. Re-run with -dry-run=false to apply defaults.")
		if report.Incomplete > 0 {
			os.Exit(1)
		}
		return
	}
	fmt.Printf("Profiles updated: %d\n", report.Updated)
}
