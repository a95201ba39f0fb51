// Package espeak voices text through libespeak-ng.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
proton_init(const char *voice, int rate)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	if (espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }

	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	return 0;
}

static int
proton_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	return espeak_Synchronize() == EE_OK ? 0 : -3;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// Engine is process wide: libespeak-ng keeps global state.
type Engine struct {
	mu sync.Mutex
}

var (
	initOnce sync.Once
	initErr  error
	engine   Engine
)

// Open initializes libespeak-ng once with the given voice (e.g. "en") and
// rate in words per minute (0 = default).
func Open(voice string, rate int) (*Engine, error) {
	initOnce.Do(func() {
		if voice == "" {
			voice = "en"
		}
		cvoice := C.CString(voice)
		defer C.free(unsafe.Pointer(cvoice))

		if rc := C.proton_init(cvoice, C.int(rate)); rc != 0 {
			initErr = fmt.Errorf("espeak init: %d", int(rc))
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return &engine, nil
}

// Say blocks until text has been played.
func (e *Engine) Say(text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.proton_say(ctext); rc != 0 {
		return fmt.Errorf("espeak say: %d", int(rc))
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
	return nil
}
