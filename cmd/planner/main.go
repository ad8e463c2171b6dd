// Package main starts the planner process lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	plannercmd "github.com/hearthplan/hearthplan/internal/cmd/planner"
	"github.com/hearthplan/hearthplan/internal/platform/config"
)

func main() {
	cfg, err := plannercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[PLANNER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := plannercmd.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("planner runtime: %v", err)
	}
}
