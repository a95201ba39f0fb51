// Package app assembles a processor and its collaborators from config.
package app

import (
	"fmt"
	log "log/slog"
	"os"
	"time"

	"proton/internal/assistant"
	"proton/internal/audio"
	"proton/internal/chat"
	"proton/internal/config"
	"proton/internal/desktop"
	"proton/internal/duck"
	"proton/internal/gesture"
	"proton/internal/listen"
	"proton/internal/notify"
	"proton/internal/proxy"
	"proton/internal/replay"
	"proton/internal/tts"
	"proton/internal/tts/espeak"
	"proton/pkg/stt"
)

const replayGap = 2 * time.Second

// App holds the processor and everything that must be released on exit.
type App struct {
	Processor *assistant.Processor

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Build wires a processor. Optional subsystems that fail to start are
// logged and left out; the assistant then answers with a notice instead.
func Build(cfg config.Config, sink assistant.Sink) (*App, error) {
	a := &App{}

	d := desktop.New(cfg.Apps)
	deps := assistant.Deps{
		Sink:     sink,
		Desktop:  d,
		Keyboard: d,
	}

	if cfg.Speech.Enabled {
		if sp, err := a.buildSpeaker(cfg); err != nil {
			log.Warn("Speech output disabled", "err", err)
		} else {
			deps.Speaker = sp
		}
	}

	if len(cfg.Gesture.Command) > 0 {
		g, err := gesture.NewProcess(cfg.Gesture.Command)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("gesture: %w", err)
		}
		deps.Gesture = g
		a.onClose(func() {
			if err := g.Stop(); err != nil {
				log.Warn("Failed to stop gesture recognition", "err", err)
			}
		})
	}

	if cfg.Chat.Enabled {
		r, err := buildResponder(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("chat: %w", err)
		}
		deps.Responder = r
	}

	if cfg.Listen.Cue != "" {
		deps.Cue = notify.NewCue(cfg.Listen.Cue)
	}

	factory, err := a.buildListeners(cfg)
	if err != nil {
		log.Warn("Voice input disabled", "err", err)
	} else {
		deps.Listeners = factory
	}

	a.Processor = assistant.New(assistant.Config{
		Name:           cfg.Assistant.Name,
		StartPath:      cfg.Assistant.StartPath,
		GreetOnStart:   cfg.Assistant.GreetOnStart,
		RestartBackoff: cfg.Assistant.RestartBackoff,
		MaxRestarts:    cfg.Assistant.MaxRestarts,
	}, deps)
	return a, nil
}

func (a *App) buildSpeaker(cfg config.Config) (*tts.Speaker, error) {
	engine, err := espeak.Open(cfg.Speech.Voice, cfg.Speech.Rate)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = engine.Close() })
	if !cfg.Speech.Duck {
		return tts.NewSpeaker(engine, nil), nil
	}
	d := duck.New(duck.Options{
		Self:      []string{"espeak", "espeak-ng", cfg.Assistant.Name},
		Factor:    cfg.Speech.DuckFactor,
		MinVolume: 10,
		Fade:      150 * time.Millisecond,
	})
	return tts.NewSpeaker(engine, d), nil
}

func buildResponder(cfg config.Config) (*chat.Responder, error) {
	client, err := proxy.NewSocksClient(cfg.Chat.Proxy, cfg.Chat.Timeout)
	if err != nil {
		return nil, err
	}
	return chat.New(chat.Options{
		Name:       cfg.Assistant.Name,
		APIKey:     cfg.Chat.APIKey,
		Model:      cfg.Chat.Model,
		BaseURL:    cfg.Chat.BaseURL,
		HTTPClient: client,
		Timeout:    cfg.Chat.Timeout,
	})
}

func (a *App) buildListeners(cfg config.Config) (assistant.ListenerFactory, error) {
	if _, err := os.Stat(cfg.Whisper.Model); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	tr, err := stt.NewTranscriber(cfg.Whisper.Model, stt.Options{
		Language: cfg.Whisper.Language,
		Threads:  cfg.Whisper.Threads,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		if err := tr.Close(); err != nil {
			log.Warn("Failed to close transcriber", "err", err)
		}
	})
	log.Debug("Loaded whisper", "model", cfg.Whisper.Model)

	var open listen.Opener
	if cfg.Listen.Replay != "" {
		open = replay.Opener(cfg.Listen.Replay, replayGap)
	} else {
		rec := audio.NewRecorder(audio.Options{
			Threshold:   cfg.Listen.Threshold,
			Silence:     cfg.Listen.Silence,
			Calibration: cfg.Listen.Calibration,
		})
		if err := rec.Init(); err != nil {
			return nil, err
		}
		a.onClose(rec.Close)
		open = rec.Open
	}

	opt := listen.Options{
		Timeout:     cfg.Listen.Timeout,
		PhraseLimit: cfg.Listen.PhraseLimit,
		Mailbox:     cfg.Listen.Mailbox,
	}
	return func() assistant.Listener {
		return listen.NewWorker(open, tr, opt)
	}, nil
}
