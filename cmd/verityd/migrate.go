package main

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/verity/config"
)

func runMigrate(args []string, stdout, stderr io.Writer) int {
	path, err := configFlag("migrate", args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verityd: %v\n", err)
		return 1
	}

	ctx := context.Background()
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verityd: %v\n", err)
		return 1
	}
	defer func() { _ = s.Close() }()

	if err := s.Migrate(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "verityd: migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "migrated %s store\n", cfg.Store.Driver)
	return 0
}
