//go:build unix

package gesture_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"proton/internal/gesture"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStartStop(t *testing.T) {
	p, err := gesture.NewProcess([]string{"sleep", "30"})
	require.NoError(t, err)

	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), gesture.ErrRunning)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}

func TestRestartAfterExit(t *testing.T) {
	p, err := gesture.NewProcess([]string{"true"})
	require.NoError(t, err)

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return p.Start() == nil }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())
}

func TestStartFailure(t *testing.T) {
	p, err := gesture.NewProcess([]string{"/nonexistent/gesture-recognizer"})
	require.NoError(t, err)
	assert.Error(t, p.Start())

	_, err = gesture.NewProcess(nil)
	assert.Error(t, err)
}
