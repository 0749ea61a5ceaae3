package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"querydesk/internal/app"
	"querydesk/internal/config"
	"querydesk/internal/i18n"
	"querydesk/internal/logging"
	"querydesk/internal/repl"
	"querydesk/internal/tui"

	"golang.org/x/term"
)

func main() {
	var (
		configPath string
		forceREPL  bool
		debug      bool
		initConfig bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC/TOML")
	flag.BoolVar(&forceREPL, "repl", false, "Use the line-oriented REPL instead of the TUI")
	flag.BoolVar(&debug, "debug", false, "Log at debug level (to stderr in REPL mode)")
	flag.BoolVar(&initConfig, "init", false, "Write ./.querydesk/config.json and exit")
	flag.Parse()

	if initConfig {
		path, err := config.InitProjectConfigScaffold()
		if err != nil {
			fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("project config: %s\n", path)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	i18n.Init(cfg.UI.Locale)

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	useREPL := forceREPL || !interactive

	logger, closeLog, err := logging.Setup(logOptions(cfg, debug, useREPL))
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file unavailable, logging disabled: %v\n", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	svc := app.New(cfg, logger)
	defer svc.Close()
	logger.Info().Str("backend", svc.Backend.BaseURL()).Bool("repl", useREPL).Msg("querydesk starting")

	if useREPL {
		err = runREPL(ctx, svc, cfg, interactive)
	} else {
		err = tui.Run(ctx, svc, cfg.UI.AltScreen)
	}
	if err != nil {
		logger.Error().Err(err).Msg("querydesk exited with error")
		fmt.Fprintf(os.Stderr, "querydesk: %v\n", err)
		svc.Close()
		closeLog()
		os.Exit(1)
	}
}

func logOptions(cfg config.Config, debug, useREPL bool) logging.Options {
	opts := logging.Options{
		Level:    cfg.Log.Level,
		Dir:      cfg.LogDir(),
		MaxFiles: cfg.Log.MaxFiles,
	}
	if debug {
		opts.Level = "debug"
		opts.Stderr = useREPL
	}
	return opts
}

func runREPL(ctx context.Context, svc *app.App, cfg config.Config, interactive bool) error {
	if !interactive {
		return repl.New(svc, repl.NewBasicLineInput(os.Stdin, nil), os.Stdout).Run(ctx)
	}

	shell := repl.New(svc, nil, os.Stdout)
	in, err := repl.NewLineInput(cfg.HistoryPath(), shell.Completer())
	if err != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", err)
	}
	defer in.Close()
	shell.UseInput(in)
	shell.EnableColor()
	return shell.Run(ctx)
}
