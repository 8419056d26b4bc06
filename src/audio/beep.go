package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/jinjor/desktop-synth/src/engine"
)

// ----- Streamer ----- //

// Streamer is a beep.Streamer over Engine.Render. The mono signal is
// copied to both channels. It never ends; wrap it in beep.Take to bound it.
type Streamer struct {
	e   *engine.Engine
	out []float64
}

func NewStreamer(e *engine.Engine) *Streamer {
	return &Streamer{e: e, out: make([]float64, e.BufferSize())}
}

func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		out := s.out[:min(len(s.out), len(samples)-n)]
		s.e.Render(out)
		for _, v := range out {
			samples[n][0] = v
			samples[n][1] = v
			n++
		}
	}
	return n, true
}

func (s *Streamer) Err() error { return nil }

// ----- BeepOutput ----- //

var speakerOnce struct {
	sync.Once
	rate beep.SampleRate
	err  error
}

// BeepOutput plays through the beep speaker. The speaker can only be
// initialized once per process, at the engine's sample rate.
type BeepOutput struct {
	latency time.Duration
}

func NewBeepOutput(latency time.Duration) *BeepOutput {
	if latency <= 0 {
		latency = 100 * time.Millisecond
	}
	return &BeepOutput{latency: latency}
}

func (o *BeepOutput) Devices() ([]string, error) {
	return []string{"audio_out: beep speaker"}, nil
}

// Run plays until ctx is done. Clearing the speaker on return guarantees
// Render is no longer called once Run has returned.
func (o *BeepOutput) Run(ctx context.Context, e *engine.Engine) error {
	sr := beep.SampleRate(int(e.SampleRate()))
	speakerOnce.Do(func() {
		speakerOnce.rate = sr
		speakerOnce.err = speaker.Init(sr, sr.N(o.latency))
	})
	if speakerOnce.err != nil {
		return speakerOnce.err
	}
	if speakerOnce.rate != sr {
		log.Printf("WARN: speaker runs at %v Hz, engine at %v Hz\n", speakerOnce.rate, sr)
	}
	speaker.Play(NewStreamer(e))
	<-ctx.Done()
	speaker.Clear()
	log.Println("BeepOutput.Run() ended.")
	return nil
}

// ----- Headless ----- //

// Headless renders in real time without a device, for running the engine
// on machines with no sound card.
type Headless struct{}

func (Headless) Run(ctx context.Context, e *engine.Engine) error {
	buf := make([]float64, e.BufferSize())
	period := time.Duration(float64(time.Second) * float64(len(buf)) / e.SampleRate())
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Headless.Run() ended.")
			return nil
		case <-t.C:
			e.Render(buf)
		}
	}
}
