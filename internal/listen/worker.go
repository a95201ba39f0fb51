package listen

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	Timeout     time.Duration // max wait for speech to start
	PhraseLimit time.Duration // max phrase length
	Mailbox     int           // queued events before the oldest is dropped
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.PhraseLimit <= 0 {
		o.PhraseLimit = 10 * time.Second
	}
	if o.Mailbox <= 0 {
		o.Mailbox = 32
	}
	return o
}

// Worker captures and transcribes utterances on its own goroutine until
// stopped or until the capture device fails. A Worker runs once; a restart
// means a new Worker.
type Worker struct {
	id   string
	open Opener
	stt  Transcriber
	opt  Options

	events chan Event
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc

	dropped atomic.Int64
}

func NewWorker(open Opener, stt Transcriber, opt Options) *Worker {
	opt = opt.withDefaults()
	return &Worker{
		id:     uuid.NewString()[:8],
		open:   open,
		stt:    stt,
		opt:    opt,
		events: make(chan Event, opt.Mailbox),
		done:   make(chan struct{}),
	}
}

func (w *Worker) ID() string { return w.id }

// Events is closed once the worker goroutine has exited.
func (w *Worker) Events() <-chan Event { return w.events }

func (w *Worker) Done() <-chan struct{} { return w.done }

// Dropped reports how many events were discarded because the mailbox was full.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

func (w *Worker) Start() {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		go w.run(ctx)
	})
}

// Stop cancels the worker and waits for its goroutine to exit. Safe to call
// more than once and before Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		// never started: nothing to join
		w.startOnce.Do(func() {
			close(w.events)
			close(w.done)
		})
		if w.cancel != nil {
			w.cancel()
		}
		<-w.done
		log.Debug("Listener stopped", "worker", w.id, "dropped", w.dropped.Load())
	})
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

	src, err := w.open()
	if err != nil {
		w.emit(Failure(fmt.Errorf("%w: %w", ErrCaptureDevice, err)))
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("Failed to release capture device", "worker", w.id, "err", err)
		}
	}()

	log.Debug("Listener started", "worker", w.id)

	for ctx.Err() == nil {
		utt, err := src.Listen(ctx, w.opt.Timeout, w.opt.PhraseLimit)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrWaitTimeout) {
			continue
		}
		if err != nil {
			w.emit(Failure(fmt.Errorf("%w: %w", ErrCaptureDevice, err)))
			return
		}

		w.emit(Level(utt.Level))

		text, err := w.stt.Transcribe(ctx, utt.PCM)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.emit(Failure(fmt.Errorf("%w: %w", ErrTranscription, err)))
			continue
		}

		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			continue
		}

		log.Debug("Heard", "worker", w.id, "text", text)
		w.emit(Transcript(text))
	}
}

// emit never blocks: when the mailbox is full the oldest event is dropped.
func (w *Worker) emit(ev Event) {
	for {
		select {
		case w.events <- ev:
			return
		default:
		}

		select {
		case <-w.events:
			w.dropped.Add(1)
		default:
		}
	}
}
