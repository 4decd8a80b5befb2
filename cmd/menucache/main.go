package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/config"
	"github.com/JakeFAU/vendor-menu-cache/internal/server"
)

type options struct {
	Config string `long:"config" short:"c" env:"MENUCACHE_CONFIG" description:"Path to a YAML/JSON/TOML config file"`
	Port   int    `long:"port" short:"p" env:"PORT" description:"HTTP port, overrides server.port"`
}

// errHelp signals that usage was printed and the process should exit cleanly.
var errHelp = errors.New("help requested")

func parseOptions(args []string) (options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return options{}, errHelp
		}
		return options{}, fmt.Errorf("parse flags: %w", err)
	}
	return opts, nil
}

func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	return cfg, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build application: %v\n", err)
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		zap.L().Error("application exited with error", zap.Error(err))
		os.Exit(1)
	}
}
