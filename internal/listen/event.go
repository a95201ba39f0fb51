package listen

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWaitTimeout is returned by a Source when no speech started within
	// the cycle timeout. The worker retries silently.
	ErrWaitTimeout = errors.New("timed out waiting for speech")

	ErrCaptureDevice = errors.New("microphone error")
	ErrTranscription = errors.New("could not transcribe audio")
)

type Kind uint8

const (
	KindTranscript Kind = iota
	KindLevel
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindLevel:
		return "level"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Event is what a worker hands to the processor. Exactly one of Text,
// Level or Err is meaningful, depending on Kind.
type Event struct {
	Kind  Kind
	Text  string
	Level float64
	Err   error
}

func Transcript(text string) Event { return Event{Kind: KindTranscript, Text: text} }

func Level(v float64) Event {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return Event{Kind: KindLevel, Level: v}
}

func Failure(err error) Event { return Event{Kind: KindError, Err: err} }

// Utterance is one captured phrase, mono float32 PCM at 16 kHz.
type Utterance struct {
	PCM   []float32
	Level float64
}

// Source is an exclusively owned capture device.
type Source interface {
	// Listen blocks until a phrase was captured, timeout elapsed without
	// speech (ErrWaitTimeout) or ctx is done.
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (Utterance, error)
	Close() error
}

// Opener acquires a fresh Source for a worker instance.
type Opener func() (Source, error)

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}
