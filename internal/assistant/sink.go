package assistant

import (
	log "log/slog"
)

// NopSink discards everything. Embed it to implement only part of Sink.
type NopSink struct{}

func (NopSink) AssistantText(string)    {}
func (NopSink) UserText(string, Origin) {}
func (NopSink) Error(string)            {}
func (NopSink) Level(float64)           {}
func (NopSink) Status(Status)           {}
func (NopSink) Clear()                  {}

// LogSink writes the conversation to the structured log.
type LogSink struct{}

func (LogSink) AssistantText(text string) { log.Info("Assistant", "text", text) }

func (LogSink) UserText(text string, origin Origin) {
	log.Info("User", "source", origin.String(), "text", text)
}

func (LogSink) Error(message string) { log.Warn("Assistant error", "msg", message) }

func (LogSink) Level(float64) {}

func (LogSink) Status(s Status) {
	log.Debug("Status", "active", s.Active, "listening", s.Listening)
}

func (LogSink) Clear() { log.Info("Conversation log cleared") }

// MultiSink fans feedback out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) AssistantText(text string) {
	for _, s := range m {
		s.AssistantText(text)
	}
}

func (m MultiSink) UserText(text string, origin Origin) {
	for _, s := range m {
		s.UserText(text, origin)
	}
}

func (m MultiSink) Error(message string) {
	for _, s := range m {
		s.Error(message)
	}
}

func (m MultiSink) Level(level float64) {
	for _, s := range m {
		s.Level(level)
	}
}

func (m MultiSink) Status(st Status) {
	for _, s := range m {
		s.Status(st)
	}
}

func (m MultiSink) Clear() {
	for _, s := range m {
		s.Clear()
	}
}
