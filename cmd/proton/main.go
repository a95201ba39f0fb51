package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	log "log/slog"

	"proton/internal/app"
	"proton/internal/assistant"
	"proton/internal/config"
	"proton/internal/tui"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configFile := cli.StringP("config", "c", "proton.yaml", "Config file path")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	logFile := cli.String("log-file", "proton.log", "Log file, the terminal belongs to the UI")
	listen := cli.Bool("listen", false, "Start listening right away")
	cli.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if cfg.Log.File == "" {
		cfg.Log.File = *logFile
	}

	closer, err := cfg.Log.SetupLogging(os.Stderr)
	if err != nil {
		log.Error("Failed to open log file", "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Info("Booting up")

	sink := tui.NewSink()
	a, err := app.Build(cfg, assistant.MultiSink{sink, assistant.LogSink{}})
	if err != nil {
		log.Error("Failed to build assistant", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	program := tea.NewProgram(tui.New(ctx, a.Processor, cfg.Assistant.Name), tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Attach(program)

	g, gctx := errgroup.WithContext(ctx)
	pctx, cancelProcessor := context.WithCancel(gctx)
	defer cancelProcessor()

	g.Go(func() error {
		err := a.Processor.Run(pctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if *listen || cfg.Assistant.ListenOnStart {
		g.Go(func() error {
			if err := a.Processor.EnableListening(pctx); err != nil {
				log.Warn("Failed to start listening", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancelProcessor()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}
