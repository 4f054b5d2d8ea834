package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sahilchouksey/course-marketplace-api/config"
	"github.com/sahilchouksey/course-marketplace-api/database"
	"github.com/sahilchouksey/course-marketplace-api/utils"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadENV(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := utils.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := database.StartGORM(cfg, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("Course Marketplace - Database Seeding")
	fmt.Println(separator)

	if err := database.NewSeeder(store.DB(), log).SeedAll(cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
		return err
	}

	log.Info("Seeding completed", zap.String("env", cfg.Env))
	fmt.Println(separator)
	fmt.Println("Admin user is created from ADMIN_EMAIL and ADMIN_PASSWORD when both are set.")
	return nil
}
