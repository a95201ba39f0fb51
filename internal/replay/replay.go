// Package replay is a listen.Source that plays back recorded utterances
// from a directory, for running without a microphone.
package replay

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"proton/internal/listen"
	"proton/pkg/audioconv"
)

var extensions = map[string]bool{".wav": true, ".mp3": true, ".ogg": true, ".oga": true}

type Source struct {
	files []string
	next  int
	gap   time.Duration
	max   int
}

// Open lists the audio files of dir in name order. Each Listen returns the
// next one after waiting gap.
func Open(dir string, gap time.Duration) (*Source, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	var files []string
	for _, de := range des {
		if !de.IsDir() && extensions[strings.ToLower(filepath.Ext(de.Name()))] {
			files = append(files, filepath.Join(dir, de.Name()))
		}
	}
	sort.Strings(files)
	log.Info("Replaying recordings", "dir", dir, "files", len(files))

	return &Source{files: files, gap: gap}, nil
}

// Opener returns a listen.Opener replaying dir from the start each time.
func Opener(dir string, gap time.Duration) listen.Opener {
	return func() (listen.Source, error) {
		return Open(dir, gap)
	}
}

func (s *Source) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (listen.Utterance, error) {
	wait := s.gap
	if s.next >= len(s.files) {
		wait = timeout
	}

	select {
	case <-ctx.Done():
		return listen.Utterance{}, ctx.Err()
	case <-time.After(wait):
	}

	if s.next >= len(s.files) {
		return listen.Utterance{}, listen.ErrWaitTimeout
	}
	path := s.files[s.next]
	s.next++

	limit := int(phraseLimit.Seconds() * audioconv.TargetRate)
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{MaxSamples: limit})
	if err != nil {
		return listen.Utterance{}, err
	}
	log.Debug("Replayed", "file", filepath.Base(path), "samples", len(pcm))

	return listen.Utterance{PCM: pcm, Level: peak(pcm)}, nil
}

func (s *Source) Close() error { return nil }

func peak(pcm []float32) float64 {
	var p float64
	for _, x := range pcm {
		p = math.Max(p, math.Abs(float64(x)))
	}
	return math.Min(p, 1)
}
