package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	log "log/slog"

	"proton/internal/app"
	"proton/internal/assistant"
	"proton/internal/bus"
	"proton/internal/config"
	"proton/internal/ipc"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configFile := cli.StringP("config", "c", "proton.yaml", "Config file path")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	socket := cli.StringP("socket", "s", "", "Control socket path")
	busURL := cli.StringP("bus", "b", "", "Websocket hub url")
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
	if *socket != "" {
		cfg.Control.Socket = *socket
	}
	if *busURL != "" {
		cfg.Bus.URL = *busURL
	}

	closer, err := cfg.Log.SetupLogging(os.Stdout)
	if err != nil {
		log.Error("Failed to open log file", "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Info("Booting up")

	replies := &replyLog{}
	sinks := assistant.MultiSink{assistant.LogSink{}, replies}

	var hub *bus.Client
	if cfg.Bus.URL != "" {
		hub = bus.New(cfg.Bus.URL, bus.Options{Name: "proton"})
		sinks = append(sinks, hub)
	}

	a, err := app.Build(cfg, sinks)
	if err != nil {
		log.Error("Failed to build assistant", "err", err)
		os.Exit(1)
	}
	defer a.Close()
	p := a.Processor

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	// the processor ending (e.g. "exit") stops the other services too
	sctx, stopServices := context.WithCancel(gctx)
	defer stopServices()

	g.Go(func() error {
		defer stopServices()
		err := p.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return ipc.Serve(sctx, cfg.Control.Socket, handler(p, replies))
	})

	if hub != nil {
		hub.SetCommandHandler(p.Submit)
		g.Go(func() error { return hub.Run(sctx) })
	}

	if cfg.Assistant.ListenOnStart {
		if err := p.EnableListening(ctx); err != nil {
			log.Warn("Failed to start listening", "err", err)
		}
	}

	log.Info("Boot up - successful")

	if err := g.Wait(); err != nil {
		log.Error("Exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

func handler(p *assistant.Processor, replies *replyLog) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case "listen":
			if err := p.EnableListening(ctx); err != nil {
				return ipc.Fail(err)
			}
			return ipc.Reply{OK: true, Text: "Listening"}

		case "mute":
			if err := p.DisableListening(ctx); err != nil {
				return ipc.Fail(err)
			}
			return ipc.Reply{OK: true, Text: "Not listening"}

		case "toggle":
			on, err := p.ToggleListening(ctx)
			if err != nil {
				return ipc.Fail(err)
			}
			if on {
				return ipc.Reply{OK: true, Text: "Listening"}
			}
			return ipc.Reply{OK: true, Text: "Not listening"}

		case "say":
			mark := replies.mark()
			if err := p.Submit(ctx, msg.Text); err != nil {
				return ipc.Fail(err)
			}
			return ipc.Reply{OK: true, Text: replies.since(mark)}

		case "help":
			return ipc.Reply{OK: true, Text: assistant.Help()}

		case "state":
			st, err := p.Snapshot(ctx)
			if err != nil {
				return ipc.Fail(err)
			}
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return ipc.Fail(err)
			}
			return ipc.Reply{OK: true, Text: string(data)}

		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Fail(fmt.Errorf("unknown command %q", msg.Cmd))
		}
	}
}

// replyLog keeps the assistant's recent replies so a control client can be
// told what its command produced.
type replyLog struct {
	assistant.NopSink

	mu    sync.Mutex
	seq   int
	lines []string
}

const replyLogSize = 32

func (r *replyLog) AssistantText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.lines = append(r.lines, text)
	if len(r.lines) > replyLogSize {
		r.lines = r.lines[len(r.lines)-replyLogSize:]
	}
}

func (r *replyLog) mark() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *replyLog) since(mark int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(r.seq-mark, len(r.lines))
	if n <= 0 {
		return ""
	}
	return strings.Join(r.lines[len(r.lines)-n:], "\n")
}
