package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proton/internal/tts"
)

type engine struct {
	said   []string
	failOn string
}

func (e *engine) Say(text string) error {
	if text == e.failOn {
		return errors.New("device busy")
	}
	e.said = append(e.said, text)
	return nil
}

type ducker struct {
	calls []string
}

func (d *ducker) Duck(context.Context) error    { d.calls = append(d.calls, "duck"); return nil }
func (d *ducker) Restore(context.Context) error { d.calls = append(d.calls, "restore"); return nil }

func TestSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"Opened folder music", "Listing contents:", "1", "song", "mp3"},
		tts.Sentences("Opened folder music. Listing contents:\n1. song.mp3\n"))
	assert.Empty(t, tts.Sentences(" . \n"))
}

func TestSpeakVoicesEachSentence(t *testing.T) {
	e := &engine{}
	d := &ducker{}
	s := tts.NewSpeaker(e, d)

	require.NoError(t, s.Speak("Hello there! How can I assist you today?"))
	require.NoError(t, s.Speak("Goodbye. Have a great day."))

	assert.Equal(t, []string{
		"Hello there! How can I assist you today?",
		"Goodbye",
		"Have a great day",
	}, e.said)
	assert.Equal(t, []string{"duck", "restore", "duck", "restore"}, d.calls)
}

func TestSpeakStopsOnFailure(t *testing.T) {
	e := &engine{failOn: "two"}
	d := &ducker{}
	s := tts.NewSpeaker(e, d)

	err := s.Speak("one. two. three.")
	require.Error(t, err)
	assert.Equal(t, []string{"one"}, e.said)
	assert.Equal(t, []string{"duck", "restore"}, d.calls)
}

func TestSpeakNothing(t *testing.T) {
	d := &ducker{}
	require.NoError(t, tts.NewSpeaker(&engine{}, d).Speak("  "))
	assert.Empty(t, d.calls)
}
