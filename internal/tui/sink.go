package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"proton/internal/assistant"
)

type (
	assistantMsg struct{ text string }
	userMsg      struct {
		text   string
		origin assistant.Origin
	}
	errorMsg  struct{ text string }
	levelMsg  float64
	statusMsg assistant.Status
	clearMsg  struct{}
)

// Sink forwards processor feedback into a running tea.Program. Feedback
// produced before Attach is dropped.
type Sink struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Attach(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = p.Send
}

func (s *Sink) post(msg tea.Msg) {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

func (s *Sink) AssistantText(text string) { s.post(assistantMsg{text}) }

func (s *Sink) UserText(text string, origin assistant.Origin) {
	s.post(userMsg{text: text, origin: origin})
}

func (s *Sink) Error(message string)       { s.post(errorMsg{message}) }
func (s *Sink) Level(level float64)        { s.post(levelMsg(level)) }
func (s *Sink) Status(st assistant.Status) { s.post(statusMsg(st)) }
func (s *Sink) Clear()                     { s.post(clearMsg{}) }
