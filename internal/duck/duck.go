// Package duck lowers the volume of other PulseAudio streams while the
// assistant speaks and restores it afterwards.
package duck

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// Runner executes pactl with the given arguments.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "pactl", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

type Options struct {
	Self      []string      // application.name values left untouched
	Factor    float64       // target = current * Factor
	MinVolume int           // percent floor for ducked streams
	Fade      time.Duration // 0 = jump
	Run       Runner        // nil = pactl
}

type stream struct {
	id      int
	volume  int
	appName string
}

type fade struct {
	id, from, to int
}

type Ducker struct {
	mu       sync.Mutex
	opt      Options
	active   bool
	original map[int]int
}

func New(opt Options) *Ducker {
	opt.MinVolume = min(max(opt.MinVolume, 0), maxVolume)
	if opt.Factor <= 0 || opt.Factor > 1 {
		opt.Factor = 0.3
	}
	if opt.Run == nil {
		opt.Run = pactl
	}
	return &Ducker{opt: opt, original: map[int]int{}}
}

// Duck fades every foreign stream down. Repeated calls are no-ops until
// Restore.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = map[int]int{}
	var fades []fade
	for _, s := range streams {
		to := int(math.Round(float64(s.volume) * d.opt.Factor))
		to = min(max(to, d.opt.MinVolume), maxVolume)
		d.original[s.id] = s.volume
		fades = append(fades, fade{id: s.id, from: s.volume, to: to})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams
// that appeared after Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		orig, ok := d.original[s.id]
		if !ok {
			continue
		}
		fades = append(fades, fade{id: s.id, from: s.volume, to: orig})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}
	d.original = map[int]int{}
	d.active = false
	return nil
}

func (d *Ducker) list(ctx context.Context) ([]stream, error) {
	out, err := d.opt.Run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, err
	}

	var foreign []stream
	for _, s := range parseSinkInputs(string(out)) {
		if !d.isSelf(s) {
			foreign = append(foreign, s)
		}
	}
	return foreign, nil
}

func (d *Ducker) isSelf(s stream) bool {
	for _, name := range d.opt.Self {
		if s.appName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) apply(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(d.opt.Fade/minStep), 1)
	interval := d.opt.Fade / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setVolume(ctx, f.id, v); err != nil {
				return err
			}
		}
		if i == steps {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	_, err := d.opt.Run(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

func parseSinkInputs(text string) []stream {
	parts := strings.Split(text, "Sink Input #")
	var res []stream

	for _, block := range parts[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		s := stream{id: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && s.volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && s.appName == "":
				_, v, _ := strings.Cut(line, "=")
				s.appName = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}

		if s.volume == 0 && s.appName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
