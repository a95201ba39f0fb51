package listen

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type step struct {
	utt Utterance
	err error
}

type fakeSource struct {
	steps  chan step
	closed atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{steps: make(chan step)}
}

func (f *fakeSource) Listen(ctx context.Context, _, _ time.Duration) (Utterance, error) {
	select {
	case s := <-f.steps:
		return s.utt, s.err
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	}
}

func (f *fakeSource) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeSource) push(t *testing.T, s step) {
	t.Helper()
	select {
	case f.steps <- s:
	case <-time.After(time.Second):
		t.Fatal("worker did not ask for the next utterance")
	}
}

type sttFunc func(pcm []float32) (string, error)

func (f sttFunc) Transcribe(_ context.Context, pcm []float32) (string, error) {
	return f(pcm)
}

var words = sttFunc(func(pcm []float32) (string, error) {
	switch pcm[0] {
	case 1:
		return "  Open Music ", nil
	case 2:
		return "two", nil
	case 3:
		return "", errors.New("service unavailable")
	}
	return "", nil
})

func utt(id float32, level float64) step {
	return step{utt: Utterance{PCM: []float32{id}, Level: level}}
}

func startWorker(t *testing.T, src *fakeSource, opt Options) *Worker {
	t.Helper()
	w := NewWorker(func() (Source, error) { return src, nil }, words, opt)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func next(t *testing.T, w *Worker) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestWorkerTimeoutIsSilent(t *testing.T) {
	src := newFakeSource()
	w := startWorker(t, src, Options{})

	src.push(t, step{err: ErrWaitTimeout})
	src.push(t, utt(1, 0.5))

	assert.Equal(t, Level(0.5), next(t, w))
	assert.Equal(t, Transcript("open music"), next(t, w))
}

func TestWorkerTranscriptionFailureKeepsListening(t *testing.T) {
	src := newFakeSource()
	w := startWorker(t, src, Options{})

	src.push(t, utt(3, 0.2))
	assert.Equal(t, KindLevel, next(t, w).Kind)

	ev := next(t, w)
	require.Equal(t, KindError, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrTranscription)

	src.push(t, utt(2, 0.2))
	assert.Equal(t, KindLevel, next(t, w).Kind)
	assert.Equal(t, Transcript("two"), next(t, w))
}

func TestWorkerEmptyTranscriptEmitsOnlyLevel(t *testing.T) {
	src := newFakeSource()
	w := startWorker(t, src, Options{})

	src.push(t, utt(9, 0.1))
	src.push(t, utt(2, 0.1))

	assert.Equal(t, KindLevel, next(t, w).Kind)
	assert.Equal(t, KindLevel, next(t, w).Kind)
	assert.Equal(t, Transcript("two"), next(t, w))
}

func TestWorkerDeviceFailureTerminates(t *testing.T) {
	src := newFakeSource()
	w := startWorker(t, src, Options{})

	src.push(t, step{err: io.ErrUnexpectedEOF})

	ev := next(t, w)
	require.Equal(t, KindError, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrCaptureDevice)
	assert.ErrorIs(t, ev.Err, io.ErrUnexpectedEOF)

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker still running after device failure")
	}
	_, ok := <-w.Events()
	assert.False(t, ok)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestWorkerOpenFailure(t *testing.T) {
	w := NewWorker(func() (Source, error) { return nil, errors.New("no device") }, words, Options{})
	w.Start()
	defer w.Stop()

	ev := next(t, w)
	assert.ErrorIs(t, ev.Err, ErrCaptureDevice)
	<-w.Done()
}

func TestWorkerStopJoinsAndIsIdempotent(t *testing.T) {
	src := newFakeSource()
	w := NewWorker(func() (Source, error) { return src, nil }, words, Options{})
	w.Start()

	w.Stop()
	w.Stop()

	select {
	case <-w.Done():
	default:
		t.Fatal("Stop returned before the worker exited")
	}
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestWorkerStopBeforeStart(t *testing.T) {
	opened := false
	w := NewWorker(func() (Source, error) {
		opened = true
		return newFakeSource(), nil
	}, words, Options{})

	w.Stop()
	w.Start()

	<-w.Done()
	assert.False(t, opened)
}

func TestWorkerMailboxDropsOldest(t *testing.T) {
	src := newFakeSource()
	w := startWorker(t, src, Options{Mailbox: 2})

	src.push(t, utt(1, 0.1))
	src.push(t, utt(2, 0.3))
	// the worker only asks again once cycle two is fully emitted
	src.push(t, step{err: ErrWaitTimeout})
	w.Stop()

	var got []Event
	for ev := range w.Events() {
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Level(0.3), Transcript("two")}, got)
	assert.Equal(t, int64(2), w.Dropped())
}

func TestLevelClamps(t *testing.T) {
	assert.Equal(t, 1.0, Level(3).Level)
	assert.Equal(t, 0.0, Level(-1).Level)
}
