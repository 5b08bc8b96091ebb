package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/cli"
	"github.com/jask/ledgermatch/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander, cfg)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
