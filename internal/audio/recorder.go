// Package audio captures phrases from the default input device.
package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"proton/internal/listen"
)

type Options struct {
	Threshold   float64       // minimum speech RMS
	Silence     time.Duration // trailing silence ending a phrase
	Calibration time.Duration // ambient noise sampling on open, 0 = skip
}

// Recorder owns the portaudio library lifetime. Microphones opened from it
// must be closed before the Recorder.
type Recorder struct {
	opt Options

	mu     sync.Mutex
	inited bool
}

func NewRecorder(opt Options) *Recorder { return &Recorder{opt: opt} }

func (r *Recorder) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inited {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	r.inited = true
	return nil
}

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inited {
		portaudio.Terminate()
		r.inited = false
	}
}

// Open starts a capture stream and calibrates the speech threshold to the
// room. It is a listen.Opener.
func (r *Recorder) Open() (listen.Source, error) {
	buf := make([]float32, listen.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, listen.SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	m := &Microphone{
		stream: stream,
		buf:    buf,
		det: listen.NewDetector(listen.DetectorConfig{
			Threshold: r.opt.Threshold,
			Silence:   r.opt.Silence,
		}),
	}

	if err := m.calibrate(r.opt.Calibration); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Microphone is a listen.Source backed by a portaudio input stream.
type Microphone struct {
	stream *portaudio.Stream
	buf    []float32
	det    *listen.Detector
}

func (m *Microphone) calibrate(d time.Duration) error {
	frames := int(d / listen.FrameDuration)
	for i := 0; i < frames; i++ {
		if err := m.stream.Read(); err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		m.det.Calibrate(m.buf)
	}
	if frames > 0 {
		log.Debug("Calibrated microphone", "threshold", m.det.Threshold())
	}
	return nil
}

// Listen reads frames until a phrase ends, phraseLimit is reached or no
// speech started within timeout. ctx is checked once per frame.
func (m *Microphone) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (listen.Utterance, error) {
	waitFrames := int(timeout / listen.FrameDuration)
	limitFrames := int(phraseLimit / listen.FrameDuration)

	m.det.Reset()
	for waited := 0; ; {
		if err := ctx.Err(); err != nil {
			return listen.Utterance{}, err
		}
		if err := m.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				log.Debug("Input overflowed")
				continue
			}
			return listen.Utterance{}, fmt.Errorf("read input stream: %w", err)
		}

		if m.det.Feed(m.buf) {
			return m.det.Utterance(), nil
		}
		if m.det.Speaking() {
			if m.det.Frames() >= limitFrames {
				return m.det.Utterance(), nil
			}
			continue
		}

		waited++
		if waited >= waitFrames {
			return listen.Utterance{}, listen.ErrWaitTimeout
		}
	}
}

func (m *Microphone) Close() error {
	stopErr := m.stream.Stop()
	if err := m.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
