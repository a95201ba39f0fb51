package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"proton/internal/listen"
)

type recordingSink struct {
	mu        sync.Mutex
	assistant []string
	user      []string
	errors    []string
	levels    []float64
	statuses  []Status
	clears    int
}

func (s *recordingSink) AssistantText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = append(s.assistant, text)
}

func (s *recordingSink) UserText(text string, origin Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = append(s.user, origin.String()+": "+text)
}

func (s *recordingSink) Error(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *recordingSink) Level(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, level)
}

func (s *recordingSink) Status(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *recordingSink) replies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.assistant...)
}

func (s *recordingSink) last() string {
	r := s.replies()
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

func (s *recordingSink) said(substr string) bool {
	for _, r := range s.replies() {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func (s *recordingSink) errorsSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

type fakeDesktop struct {
	mu       sync.Mutex
	paths    []string
	urls     []string
	apps     []string
	launchFn func(name string) error
}

func (d *fakeDesktop) OpenPath(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, path)
	return nil
}

func (d *fakeDesktop) OpenURL(u string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, u)
	return nil
}

func (d *fakeDesktop) LaunchApplication(name string) error {
	d.mu.Lock()
	d.apps = append(d.apps, name)
	fn := d.launchFn
	d.mu.Unlock()
	if fn != nil {
		return fn(name)
	}
	return nil
}

type fakeKeyboard struct {
	copies, pastes int
	err            error
}

func (k *fakeKeyboard) Copy() error  { k.copies++; return k.err }
func (k *fakeKeyboard) Paste() error { k.pastes++; return k.err }

type fakeSpeaker struct {
	mu   sync.Mutex
	said []string
	err  error
}

func (s *fakeSpeaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
	return s.err
}

type fakeGesture struct {
	running bool
}

func (g *fakeGesture) Start() error { g.running = true; return nil }
func (g *fakeGesture) Stop() error  { g.running = false; return nil }

type responderFunc func(string) (string, error)

func (f responderFunc) Respond(_ context.Context, cmd string) (string, error) { return f(cmd) }

// fakeListener is driven by the test through its events channel. It never
// closes the channel, so tests can keep sending after Stop.
type fakeListener struct {
	events  chan listen.Event
	started chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		events:  make(chan listen.Event, 8),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (l *fakeListener) Start()                      { close(l.started) }
func (l *fakeListener) Stop()                       { l.once.Do(func() { close(l.stopped) }) }
func (l *fakeListener) Events() <-chan listen.Event { return l.events }

func (l *fakeListener) isStopped() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

// listenerPool hands out fake listeners and records them in creation order.
type listenerPool struct {
	mu      sync.Mutex
	created []*fakeListener
	prefill map[int][]listen.Event
}

func (lp *listenerPool) factory() Listener {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	l := newFakeListener()
	for _, ev := range lp.prefill[len(lp.created)] {
		l.events <- ev
	}
	lp.created = append(lp.created, l)
	return l
}

func (lp *listenerPool) count() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return len(lp.created)
}

func (lp *listenerPool) get(i int) *fakeListener {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.created[i]
}

type harness struct {
	p       *Processor
	sink    *recordingSink
	desktop *fakeDesktop
	kb      *fakeKeyboard
	speaker *fakeSpeaker
	pool    *listenerPool
	ctx     context.Context
}

var fixedNow = time.Date(2024, time.March, 5, 15, 4, 0, 0, time.UTC)

func newHarness(t *testing.T, cfg Config, mutate ...func(*Deps)) *harness {
	t.Helper()

	h := &harness{
		sink:    &recordingSink{},
		desktop: &fakeDesktop{},
		kb:      &fakeKeyboard{},
		speaker: &fakeSpeaker{},
		pool:    &listenerPool{prefill: map[int][]listen.Event{}},
	}
	deps := Deps{
		Sink:      h.sink,
		Speaker:   h.speaker,
		Desktop:   h.desktop,
		Keyboard:  h.kb,
		Listeners: h.pool.factory,
		Now:       func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&deps)
	}

	h.p = New(cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	errc := make(chan error, 1)
	go func() { errc <- h.p.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("processor did not stop")
		}
	})
	return h
}

func (h *harness) submit(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, h.p.Submit(h.ctx, text))
	return h.sink.last()
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, err := h.p.Snapshot(h.ctx)
	require.NoError(t, err)
	return st
}
