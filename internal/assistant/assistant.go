// Package assistant is the command dispatch core: a single goroutine that owns
// the session, navigation and history state, consumes typed input and
// listener events, and runs the first matching command rule.
package assistant

import (
	"context"
	"time"

	"proton/internal/listen"
)

type Origin uint8

const (
	Typed Origin = iota
	Voice
)

func (o Origin) String() string {
	if o == Voice {
		return "voice"
	}
	return "text"
}

// Status is the externally visible session state.
type Status struct {
	Active    bool
	Listening bool
}

// Sink receives feedback in the order it is produced. Calls are made from
// the processor goroutine; implementations must not call back into the
// processor synchronously.
type Sink interface {
	AssistantText(text string)
	UserText(text string, origin Origin)
	Error(message string)
	Level(level float64)
	Status(s Status)
	Clear()
}

type Speaker interface {
	Speak(text string) error
}

type Desktop interface {
	OpenPath(path string) error
	OpenURL(url string) error
	LaunchApplication(name string) error
}

type Keyboard interface {
	Copy() error
	Paste() error
}

type Gesture interface {
	Start() error
	Stop() error
}

// Responder produces a reply for commands no rule understands.
type Responder interface {
	Respond(ctx context.Context, command string) (string, error)
}

// Cue is played when listening starts.
type Cue interface {
	Play() error
}

// Listener is one listening worker instance. Stop must block until the
// instance has exited.
type Listener interface {
	Start()
	Stop()
	Events() <-chan listen.Event
}

type ListenerFactory func() Listener

type Config struct {
	Name           string
	StartPath      string
	GreetOnStart   bool
	RestartBackoff time.Duration
	MaxRestarts    int // 0 means unlimited
}

// Deps are the external collaborators. Only Listeners is required for
// listening; every other nil dependency degrades to a spoken notice.
type Deps struct {
	Sink      Sink
	Speaker   Speaker
	Desktop   Desktop
	Keyboard  Keyboard
	Gesture   Gesture
	Responder Responder
	Cue       Cue
	Listeners ListenerFactory
	Now       func() time.Time
}
