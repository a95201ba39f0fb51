// Package audioconv decodes audio files into mono float32 PCM at the rate
// the transcriber expects.
package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const TargetRate = 16000

var (
	ErrUnsupported = errors.New("unsupported audio format")
	ErrEmpty       = errors.New("no audio samples")
)

type Options struct {
	MaxSamples int // 0 = no limit
}

// DecodeFile reads path and returns mono PCM at TargetRate.
func DecodeFile(path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, err := Decode(f, filepath.Ext(path), opt)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return pcm, nil
}

// Decode picks a decoder from ext, falling back to sniffing the header.
func Decode(r io.ReadSeeker, ext string, opt Options) ([]float32, error) {
	format := strings.TrimPrefix(strings.ToLower(ext), ".")
	if format == "" {
		format = sniff(r)
	}

	var (
		pcm  []float32
		rate int
		err  error
	)
	switch format {
	case "wav", "riff":
		pcm, rate, err = decodeWAV(r)
	case "mp3":
		pcm, rate, err = decodeMP3(r)
	case "ogg", "oga", "oggs":
		pcm, rate, err = decodeOggVorbis(r)
		if err != nil {
			if _, serr := r.Seek(0, io.SeekStart); serr != nil {
				return nil, serr
			}
			var oerr error
			if pcm, rate, oerr = decodeOggOpus(r); oerr != nil {
				return nil, fmt.Errorf("ogg: vorbis: %v, opus: %w", err, oerr)
			}
			err = nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, ErrEmpty
	}

	pcm = resampleLinear(pcm, rate, TargetRate)
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm, nil
}

func sniff(r io.ReadSeeker) string {
	magic := make([]byte, 4)
	n, _ := io.ReadFull(r, magic)
	_, _ = r.Seek(0, io.SeekStart)
	switch {
	case n == 4 && string(magic) == "RIFF":
		return "wav"
	case n == 4 && string(magic) == "OggS":
		return "ogg"
	case n >= 3 && string(magic[:3]) == "ID3":
		return "mp3"
	}
	return "unknown"
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, ErrEmpty
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	pcm := intsToFloat32(buf.Data, depth)
	return downmix(pcm, buf.Format.NumChannels), buf.Format.SampleRate, nil
}

func decodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, err
	}
	samples := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, samples); err != nil {
		return nil, 0, err
	}
	// go-mp3 always produces interleaved stereo
	return downmix(int16sToFloat32(samples), 2), dec.SampleRate(), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid vorbis stream")
	}
	return downmix(pcm, format.Channels), format.SampleRate, nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func resampleLinear(in []float32, from, to int) []float32 {
	if from <= 0 || from == to || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}
