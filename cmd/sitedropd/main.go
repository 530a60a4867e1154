package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benedict2310/sitedrop/internal/server"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "sitedropd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sitedropd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (env: SITEDROPD_CONFIG)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	checkOnly := fs.Bool("check", false, "Validate configuration and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return nil
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *checkOnly {
		fmt.Fprintf(stdout, "config ok: listen=%s store=%s data=%s\n", cfg.ListenAddr(), cfg.Store, cfg.DataDir)
		return nil
	}

	logger, err := server.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
