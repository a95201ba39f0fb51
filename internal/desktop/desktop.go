// Package desktop opens files, URLs and applications and simulates the
// clipboard shortcuts through the platform's own tools.
package desktop

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("not supported on this platform")

const commandTimeout = 10 * time.Second

// Runner starts a command. Launchers are started, not waited for.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) error
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Start(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap in the background so launched programs do not linger as zombies
	go func() { _ = cmd.Wait() }()
	return nil
}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Desktop implements the assistant's Desktop and Keyboard using the
// commands of one operating system.
type Desktop struct {
	goos string
	run  Runner
	// Apps maps spoken names to executables, e.g. "browser" -> "firefox".
	apps map[string]string
}

func New(apps map[string]string) *Desktop {
	return NewFor(runtime.GOOS, execRunner{}, apps)
}

func NewFor(goos string, run Runner, apps map[string]string) *Desktop {
	normalized := make(map[string]string, len(apps))
	for k, v := range apps {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Desktop{goos: goos, run: run, apps: normalized}
}

type command struct {
	name string
	args []string
}

func (d *Desktop) openCommand(target string) (command, error) {
	switch d.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return command{"xdg-open", []string{target}}, nil
	case "darwin":
		return command{"open", []string{target}}, nil
	case "windows":
		return command{"rundll32", []string{"url.dll,FileProtocolHandler", target}}, nil
	}
	return command{}, fmt.Errorf("open: %w", ErrUnsupported)
}

func (d *Desktop) launchCommand(app string) (command, error) {
	if exe, ok := d.apps[app]; ok {
		app = exe
	}
	switch d.goos {
	case "darwin":
		return command{"open", []string{"-a", app}}, nil
	case "windows":
		return command{"cmd", []string{"/c", "start", "", app}}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		fields := strings.Fields(app)
		if len(fields) == 0 {
			return command{}, errors.New("empty application name")
		}
		return command{fields[0], fields[1:]}, nil
	}
	return command{}, fmt.Errorf("launch: %w", ErrUnsupported)
}

func (d *Desktop) shortcutCommand(key string) (command, error) {
	switch d.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return command{"xdotool", []string{"key", "--clearmodifiers", "ctrl+" + key}}, nil
	case "darwin":
		script := fmt.Sprintf(`tell application "System Events" to keystroke "%s" using command down`, key)
		return command{"osascript", []string{"-e", script}}, nil
	case "windows":
		script := fmt.Sprintf(`(New-Object -ComObject WScript.Shell).SendKeys('^%s')`, key)
		return command{"powershell", []string{"-NoProfile", "-Command", script}}, nil
	}
	return command{}, fmt.Errorf("shortcut: %w", ErrUnsupported)
}

func (d *Desktop) start(c command, err error) error {
	if err != nil {
		return err
	}
	log.Debug("Starting", "cmd", c.name, "args", c.args)
	return d.run.Start(context.Background(), c.name, c.args...)
}

func (d *Desktop) wait(c command, err error) error {
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	log.Debug("Running", "cmd", c.name, "args", c.args)
	return d.run.Run(ctx, c.name, c.args...)
}

func (d *Desktop) OpenPath(path string) error { return d.start(d.openCommand(path)) }

func (d *Desktop) OpenURL(u string) error { return d.start(d.openCommand(u)) }

func (d *Desktop) LaunchApplication(name string) error {
	return d.start(d.launchCommand(strings.TrimSpace(name)))
}

func (d *Desktop) Copy() error { return d.wait(d.shortcutCommand("c")) }

func (d *Desktop) Paste() error { return d.wait(d.shortcutCommand("v")) }
