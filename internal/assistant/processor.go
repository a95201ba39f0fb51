package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync/atomic"
	"time"

	"proton/internal/history"
	"proton/internal/listen"
	"proton/internal/nav"
)

var (
	ErrTerminated = errors.New("assistant terminated")
	ErrRunning    = errors.New("processor already running")
)

const defaultName = "Proton"

type request struct {
	fn   func()
	done chan struct{}
}

// Processor is the single owner of the assistant state. Every exported
// method is a round trip into the goroutine running Run.
type Processor struct {
	cfg  Config
	deps Deps

	requests chan request
	done     chan struct{}
	started  atomic.Bool

	// owned by the Run goroutine
	active     bool
	listening  bool
	terminated bool
	gesture    bool
	worker     Listener
	restartC   <-chan time.Time
	restarts   int
	nav        *nav.Navigator
	history    *history.History
	ctx        context.Context
}

func New(cfg Config, deps Deps) *Processor {
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Processor{
		cfg:      cfg,
		deps:     deps,
		requests: make(chan request),
		done:     make(chan struct{}),
		active:   true,
		nav:      nav.New(cfg.StartPath),
		history:  history.New(),
		ctx:      context.Background(),
	}
}

// Done is closed when Run has returned.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Run processes requests and listener events until ctx is done or a
// terminate command is executed.
func (p *Processor) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	return p.run(ctx)
}

func (p *Processor) run(ctx context.Context) error {
	defer close(p.done)
	defer p.stopWorker()

	p.ctx = ctx

	log.Info("Assistant ready", "name", p.cfg.Name, "path", p.nav.Path())
	p.publishStatus()
	if p.cfg.GreetOnStart {
		p.greet()
	}

	for {
		var events <-chan listen.Event
		if p.worker != nil {
			events = p.worker.Events()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-p.requests:
			req.fn()
			close(req.done)

		case ev, ok := <-events:
			if !ok {
				p.workerExited()
				break
			}
			p.handleEvent(ev)

		case <-p.restartC:
			p.restartC = nil
			if p.listening && p.worker == nil {
				p.startWorker()
			}
		}

		if p.terminated {
			log.Info("Assistant terminated")
			return nil
		}
	}
}

func (p *Processor) call(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}

	select {
	case p.requests <- req:
	case <-p.done:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit handles typed input: it is recorded in history and executed.
func (p *Processor) Submit(ctx context.Context, text string) error {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	return p.call(ctx, func() {
		p.history.Append(text)
		p.deps.Sink.UserText(text, Typed)
		p.execute(text)
	})
}

func (p *Processor) EnableListening(ctx context.Context) error {
	return p.call(ctx, p.enableListening)
}

func (p *Processor) DisableListening(ctx context.Context) error {
	return p.call(ctx, p.disableListening)
}

// ToggleListening flips the listening state and returns the new one.
func (p *Processor) ToggleListening(ctx context.Context) (bool, error) {
	var on bool
	err := p.call(ctx, func() {
		if p.listening {
			p.disableListening()
		} else {
			p.enableListening()
		}
		on = p.listening
	})
	return on, err
}

func (p *Processor) RecallPrevious(ctx context.Context) (string, bool, error) {
	return p.recall(ctx, p.history.Previous)
}

func (p *Processor) RecallNext(ctx context.Context) (string, bool, error) {
	return p.recall(ctx, p.history.Next)
}

func (p *Processor) recall(ctx context.Context, step func() (string, bool)) (string, bool, error) {
	var (
		s  string
		ok bool
	)
	err := p.call(ctx, func() { s, ok = step() })
	return s, ok, err
}

// State is a copy of the processor state.
type State struct {
	Active    bool
	Listening bool
	Path      string
	Entries   []string
	History   []string
}

func (p *Processor) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := p.call(ctx, func() {
		st = State{
			Active:    p.active,
			Listening: p.listening,
			Path:      p.nav.Path(),
			Entries:   p.nav.Entries(),
			History:   p.history.Items(),
		}
	})
	return st, err
}

func (p *Processor) handleEvent(ev listen.Event) {
	switch ev.Kind {
	case listen.KindLevel:
		p.deps.Sink.Level(ev.Level)

	case listen.KindTranscript:
		p.restarts = 0
		p.deps.Sink.UserText(ev.Text, Voice)
		p.execute(ev.Text)

	case listen.KindError:
		msg := "unknown listener error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		log.Warn("Listener failed", "err", ev.Err)
		p.deps.Sink.Error(msg)
		p.restartWorker()
	}
}

// workerExited handles a listener that stopped on its own without
// reporting an error first.
func (p *Processor) workerExited() {
	log.Warn("Listener exited unexpectedly")
	p.restartWorker()
}

func (p *Processor) enableListening() {
	if p.listening {
		return
	}
	if p.deps.Listeners == nil {
		p.deps.Sink.Error("voice input is not available")
		return
	}

	p.listening = true
	p.restarts = 0
	p.startWorker()
	p.publishStatus()

	if p.deps.Cue != nil {
		if err := p.deps.Cue.Play(); err != nil {
			log.Debug("Failed to play cue", "err", err)
		}
	}
}

func (p *Processor) disableListening() {
	if !p.listening {
		return
	}
	p.stopWorker()
	p.restartC = nil
	p.listening = false
	p.deps.Sink.Level(0)
	p.publishStatus()
}

func (p *Processor) startWorker() {
	w := p.deps.Listeners()
	w.Start()
	p.worker = w
	log.Debug("Listening")
}

// stopWorker joins the current worker and discards whatever it queued.
func (p *Processor) stopWorker() {
	if p.worker == nil {
		return
	}
	w := p.worker
	p.worker = nil
	w.Stop()

	discarded := 0
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				if discarded > 0 {
					log.Debug("Discarded stale listener events", "count", discarded)
				}
				return
			}
			discarded++
		default:
			return
		}
	}
}

func (p *Processor) restartWorker() {
	if !p.listening {
		p.stopWorker()
		return
	}
	p.stopWorker()

	p.restarts++
	if p.cfg.MaxRestarts > 0 && p.restarts > p.cfg.MaxRestarts {
		log.Error("Listener keeps failing, giving up", "restarts", p.restarts-1)
		p.deps.Sink.Error(fmt.Sprintf("voice input stopped after %d restarts", p.restarts-1))
		p.listening = false
		p.deps.Sink.Level(0)
		p.publishStatus()
		return
	}

	if p.cfg.RestartBackoff > 0 {
		p.restartC = time.After(p.cfg.RestartBackoff)
		return
	}
	p.startWorker()
}

func (p *Processor) publishStatus() {
	p.deps.Sink.Status(Status{Active: p.active, Listening: p.listening})
}

// say sends one response to the sink and the speech output.
func (p *Processor) say(text string) {
	p.deps.Sink.AssistantText(text)
	if p.deps.Speaker == nil {
		return
	}
	if err := p.deps.Speaker.Speak(text); err != nil {
		log.Error("Failed to voice out", "err", err)
		p.deps.Sink.Error("(Speech output failed)")
	}
}

func (p *Processor) greet() {
	var greeting string
	switch hour := p.deps.Now().Hour(); {
	case hour < 12:
		greeting = "Good Morning!"
	case hour < 18:
		greeting = "Good Afternoon!"
	default:
		greeting = "Good Evening!"
	}
	p.say(fmt.Sprintf("%s I am %s, how may I help you?", greeting, p.cfg.Name))
}

// execute runs one utterance past the sleep gate and through the rule
// table. Failures are reported and never escape.
func (p *Processor) execute(command string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Command panicked", "command", command, "panic", r)
			p.say(fmt.Sprintf("I encountered an error: %v", r))
		}
	}()

	command = normalize(command)

	if !p.active && !strings.Contains(command, "wake up") {
		p.say(replySleeping)
		return
	}

	r := match(command)
	log.Debug("Matched rule", "rule", r.name, "command", command)

	if err := r.action(p, command); err != nil {
		log.Error("Command failed", "rule", r.name, "err", err)
		p.say(fmt.Sprintf("I encountered an error: %v", err))
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
