package ipc_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"proton/internal/ipc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func socketPath(t *testing.T) string {
	t.Helper()
	// unix socket paths are length limited, keep it short
	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func serve(t *testing.T, path string, h ipc.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ipc.Serve(ctx, path, h) }()

	require.Eventually(t, func() bool {
		fi, err := os.Stat(path)
		return err == nil && fi.Mode()&os.ModeSocket != 0
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
}

func TestSendReceivesReply(t *testing.T) {
	path := socketPath(t)
	serve(t, path, func(_ context.Context, msg ipc.ControlMessage) ipc.Reply {
		if msg.Cmd != "say" {
			return ipc.Reply{Error: "unknown command"}
		}
		return ipc.Reply{OK: true, Text: strings.ToUpper(msg.Text)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := ipc.Send(ctx, path, ipc.ControlMessage{Cmd: "say", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ipc.Reply{OK: true, Text: "HELLO"}, reply)

	reply, err = ipc.Send(ctx, path, ipc.ControlMessage{Cmd: "dance"})
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, "unknown command", reply.Error)
}

func TestMalformedRequest(t *testing.T) {
	path := socketPath(t)
	serve(t, path, func(context.Context, ipc.ControlMessage) ipc.Reply {
		t.Error("handler called")
		return ipc.Reply{}
	})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "malformed request")
}

func TestServeReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	serve(t, path, func(context.Context, ipc.ControlMessage) ipc.Reply {
		return ipc.Reply{OK: true}
	})

	reply, err := ipc.Send(context.Background(), path, ipc.ControlMessage{Cmd: "state"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
}

func TestSendWithoutDaemon(t *testing.T) {
	_, err := ipc.Send(context.Background(), socketPath(t), ipc.ControlMessage{Cmd: "state"})
	assert.Error(t, err)
}
