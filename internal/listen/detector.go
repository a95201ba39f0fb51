package listen

import (
	"math"
	"time"
)

const (
	SampleRate = 16000
	FrameSize  = 320 // 20ms

	defaultThreshold = 0.015
	defaultSilence   = 600 * time.Millisecond
	// threshold tracks ambient energy scaled by this ratio
	dynamicRatio = 1.5
	// weight of the newest frame in the ambient average
	ambientDamping = 0.15
)

type DetectorConfig struct {
	Threshold float64       // minimum RMS counted as speech
	Silence   time.Duration // trailing silence that ends a phrase
}

// Detector segments a stream of fixed size frames into phrases using an
// energy threshold that follows the ambient noise floor.
type Detector struct {
	minThreshold float64
	threshold    float64
	silenceLimit int

	speaking bool
	silent   int
	pcm      []float32
	peak     float64
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Silence <= 0 {
		cfg.Silence = defaultSilence
	}
	return &Detector{
		minThreshold: cfg.Threshold,
		threshold:    cfg.Threshold,
		silenceLimit: framesIn(cfg.Silence),
	}
}

func framesIn(d time.Duration) int {
	n := int(d / FrameDuration)
	if n < 1 {
		n = 1
	}
	return n
}

// FrameDuration is the length of one frame.
const FrameDuration = time.Duration(FrameSize) * time.Second / SampleRate

func (d *Detector) Threshold() float64 { return d.threshold }

// Calibrate adapts the threshold to one frame of background noise.
func (d *Detector) Calibrate(frame []float32) {
	d.adapt(RMS(frame))
}

func (d *Detector) adapt(energy float64) {
	target := energy * dynamicRatio
	d.threshold = d.threshold*(1-ambientDamping) + target*ambientDamping
	if d.threshold < d.minThreshold {
		d.threshold = d.minThreshold
	}
}

// Reset discards a partially captured phrase.
func (d *Detector) Reset() {
	d.speaking = false
	d.silent = 0
	d.pcm = nil
	d.peak = 0
}

func (d *Detector) Speaking() bool { return d.speaking }

// Frames is the number of frames captured for the current phrase.
func (d *Detector) Frames() int { return len(d.pcm) / FrameSize }

// Feed consumes one frame and reports whether the phrase is complete.
func (d *Detector) Feed(frame []float32) bool {
	energy := RMS(frame)

	if energy > d.threshold {
		d.speaking = true
		d.silent = 0
		d.capture(frame)
		return false
	}

	if !d.speaking {
		d.adapt(energy)
		return false
	}

	d.silent++
	d.capture(frame)
	return d.silent >= d.silenceLimit
}

func (d *Detector) capture(frame []float32) {
	d.pcm = append(d.pcm, frame...)
	for _, s := range frame {
		if a := math.Abs(float64(s)); a > d.peak {
			d.peak = a
		}
	}
}

// Utterance returns the captured phrase. Level is the peak amplitude.
func (d *Detector) Utterance() Utterance {
	return Utterance{PCM: d.pcm, Level: math.Min(d.peak, 1)}
}

func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(frame)))
}
