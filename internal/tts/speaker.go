// Package tts voices assistant replies sentence by sentence.
package tts

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"
)

// Engine synthesizes and plays one piece of text, blocking until done.
type Engine interface {
	Say(text string) error
}

// Ducker lowers other audio while the assistant talks.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

const duckTimeout = 2 * time.Second

type Speaker struct {
	engine Engine
	ducker Ducker
}

// NewSpeaker returns a Speaker. ducker may be nil.
func NewSpeaker(engine Engine, ducker Ducker) *Speaker {
	return &Speaker{engine: engine, ducker: ducker}
}

// Speak voices each sentence of text in turn. A failed sentence aborts
// the rest.
func (s *Speaker) Speak(text string) error {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	if s.ducker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duckTimeout)
		if err := s.ducker.Duck(ctx); err != nil {
			log.Debug("Failed to duck audio", "err", err)
		}
		cancel()

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), duckTimeout)
			defer cancel()
			if err := s.ducker.Restore(ctx); err != nil {
				log.Debug("Failed to restore audio", "err", err)
			}
		}()
	}

	for _, sentence := range sentences {
		if err := s.engine.Say(sentence); err != nil {
			return fmt.Errorf("speak %q: %w", sentence, err)
		}
	}
	return nil
}

// Sentences splits text on periods and line breaks, dropping blanks.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range strings.Split(line, ".") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
