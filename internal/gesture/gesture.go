// Package gesture supervises an external gesture recognition program.
package gesture

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const stopGrace = 3 * time.Second

var ErrRunning = errors.New("gesture recognition already running")

// Process runs the configured command while gesture recognition is on.
type Process struct {
	argv []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

func NewProcess(argv []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty gesture command")
	}
	return &Process{argv: append([]string(nil), argv...)}, nil
}

func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		select {
		case err := <-p.done:
			log.Warn("Gesture recognition had exited", "err", err)
		default:
			return ErrRunning
		}
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	p.cmd, p.done = cmd, done
	log.Info("Gesture recognition started", "pid", cmd.Process.Pid)
	return nil
}

// Stop interrupts the program and kills it if it does not exit in time.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return nil
	}
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Warn("Gesture recognition ignored interrupt, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill: %w", err)
		}
		<-done
	}
	log.Info("Gesture recognition stopped")
	return nil
}
