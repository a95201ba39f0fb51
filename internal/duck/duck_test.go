package duck

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 52429 /  80% / -5.81 dB
	Properties:
		application.name = "proton"
Sink Input #bogus
	Volume: front-left: 1 / 1% / 0 dB
Sink Input #43
	Volume: front-left: 32768 /  50% / -18.06 dB
	Properties:
		application.name = "mpv"
`

type fakePactl struct {
	mu      sync.Mutex
	listing string
	calls   []string
	err     error
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if args[0] == "list" {
		return []byte(f.listing), f.err
	}
	f.calls = append(f.calls, strings.Join(args[1:], " "))
	return nil, f.err
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)

	assert.Equal(t, []stream{
		{id: 41, volume: 100, appName: "Firefox"},
		{id: 42, volume: 80, appName: "proton"},
		{id: 43, volume: 50, appName: "mpv"},
	}, got)
	assert.Empty(t, parseSinkInputs(""))
}

func TestDuckAndRestore(t *testing.T) {
	pa := &fakePactl{listing: sinkInputs}
	d := New(Options{Self: []string{"proton"}, Factor: 0.3, MinVolume: 20, Run: pa.run})

	require.NoError(t, d.Duck(context.Background()))
	assert.Equal(t, []string{"41 30%", "43 20%"}, pa.calls)

	pa.calls = nil
	require.NoError(t, d.Duck(context.Background()))
	assert.Empty(t, pa.calls, "already ducked")

	pa.listing = strings.NewReplacer("100%", "30%", " 50%", " 20%").Replace(sinkInputs) +
		"Sink Input #44\n\tVolume: front-left: 1 / 70% / 0 dB\n"
	require.NoError(t, d.Restore(context.Background()))
	assert.Equal(t, []string{"41 100%", "43 50%"}, pa.calls)

	pa.calls = nil
	require.NoError(t, d.Restore(context.Background()))
	assert.Empty(t, pa.calls)
}

func TestDuckFailureLeavesInactive(t *testing.T) {
	pa := &fakePactl{listing: sinkInputs, err: errors.New("no pulse")}
	d := New(Options{Run: pa.run})

	require.Error(t, d.Duck(context.Background()))
	require.NoError(t, d.Restore(context.Background()))
}
