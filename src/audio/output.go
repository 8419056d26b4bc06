// Package audio connects the engine to sound and MIDI devices: oto, the
// beep speaker, a headless clock and rtmididrv input.
package audio

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/hajimehoshi/oto"

	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/engine"
)

const bitDepthInBytes = 2

// ----- Output ----- //

// Output plays the engine through oto. The device is opened once; every
// session gets its own player.
type Output struct {
	context    *oto.Context
	sampleRate int
	channels   int
	frames     int
}

// NewOutput opens the device at audio.sample_rate, falling back to
// audio.fallback_sample_rates in order. The rate that worked is written
// back to cfg so the engine renders at it.
func NewOutput(cfg *config.Config) (*Output, error) {
	channels := cfg.Int("audio.channels", 2)
	frames := cfg.Int("audio.buffer_size", 512)
	rates := candidateRates(cfg.Float("audio.sample_rate", 48000), cfg.FloatSlice("audio.fallback_sample_rates"))
	var lastErr error
	for i, rate := range rates {
		c, err := oto.NewContext(int(rate), channels, bitDepthInBytes, frames*channels*bitDepthInBytes)
		if err != nil {
			log.Printf("failed to open audio at %v Hz: %v\n", rate, err)
			lastErr = err
			continue
		}
		if i > 0 {
			log.Printf("WARN: sample rate %v is not supported, using %v\n", rates[0], rate)
			cfg.Set("audio.sample_rate", rate)
		}
		return &Output{context: c, sampleRate: int(rate), channels: channels, frames: frames}, nil
	}
	return nil, fmt.Errorf("failed to open audio output: %w", lastErr)
}

func candidateRates(preferred float64, fallback []float64) []float64 {
	rates := []float64{preferred}
	for _, r := range fallback {
		dup := false
		for _, x := range rates {
			if x == r {
				dup = true
			}
		}
		if !dup && r > 0 {
			rates = append(rates, r)
		}
	}
	return rates
}

func (o *Output) SampleRate() int { return o.sampleRate }

// Devices names the output. oto always uses the system default.
func (o *Output) Devices() ([]string, error) {
	return []string{fmt.Sprintf("audio_out: default (%d Hz, %d ch)", o.sampleRate, o.channels)}, nil
}

// Run blocks until ctx is done.
func (o *Output) Run(ctx context.Context, e *engine.Engine) error {
	p := o.context.NewPlayer()
	defer func() {
		if err := p.Close(); err != nil {
			log.Printf("failed to close player: %v\n", err)
		}
	}()
	r := newReader(ctx, e, o.channels, o.frames)
	if _, err := io.CopyBuffer(p, r, make([]byte, o.frames*o.channels*bitDepthInBytes)); err != nil {
		return err
	}
	log.Println("Output.Run() ended.")
	return nil
}

func (o *Output) Close() error {
	log.Println("Closing audio output...")
	return o.context.Close()
}

// ----- reader ----- //

// reader renders the engine into interleaved 16-bit little-endian frames.
type reader struct {
	ctx      context.Context
	e        *engine.Engine
	channels int
	out      []float64
}

func newReader(ctx context.Context, e *engine.Engine, channels, frames int) *reader {
	return &reader{ctx: ctx, e: e, channels: channels, out: make([]float64, frames)}
}

func (r *reader) Read(buf []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, io.EOF
	default:
	}
	bytesPerFrame := r.channels * bitDepthInBytes
	frames := len(buf) / bytesPerFrame
	if frames > len(r.out) {
		frames = len(r.out)
	}
	out := r.out[:frames]
	r.e.Render(out)
	for ch := 0; ch < r.channels; ch++ {
		writeBuffer(out, buf, r.channels, ch)
	}
	return frames * bytesPerFrame, nil
}

func writeBuffer(out []float64, buf []byte, channels, ch int) {
	bytesPerFrame := channels * bitDepthInBytes
	for i, value := range out {
		if value > 1 {
			value = 1
		} else if value < -1 {
			value = -1
		}
		const max = 32767
		b := int16(value * max)
		buf[bytesPerFrame*i+2*ch] = byte(b)
		buf[bytesPerFrame*i+2*ch+1] = byte(b >> 8)
	}
}
