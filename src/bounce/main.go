// Command bounce renders patches to WAV files without an audio device.
//
//	bounce -notes 60:0:1,64:0.5:1 -out out patch1.yaml patch2.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/wav"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/audio"
	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/engine"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	outDir     = flag.String("out", ".", "output directory")
	notes      = flag.String("notes", "60:0:1", "comma separated NOTE:START:DURATION in seconds, optionally :VELOCITY")
	tail       = flag.Float64("tail", 1, "seconds rendered after the last note off")
	volume     = flag.Float64("volume", 1, "output gain")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lshortfile)
	if flag.NArg() == 0 {
		log.Fatalln("error: no patch files")
	}
	script, err := parseNotes(*notes)
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	g, _ := errgroup.WithContext(context.Background())
	for _, path := range flag.Args() {
		path := path
		g.Go(func() error {
			out := filepath.Join(*outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".wav")
			if err := bounce(path, out, script); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Printf("wrote %s\n", out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("bounce ended.")
}

func bounce(path, out string, script []noteEvent) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var patch engine.Patch
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Set("analysis.fft_size", 0)
	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	if _, err := e.Restore(patch); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := render(f, e, script, *tail, *volume); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ----- script ----- //

type noteEvent struct {
	note     uint8
	velocity uint8
	start    float64
	duration float64
}

func parseNotes(s string) ([]noteEvent, error) {
	var events []noteEvent
	for _, item := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(item), ":")
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("invalid note %q", item)
		}
		note, err := strconv.ParseUint(fields[0], 10, 7)
		if err != nil {
			return nil, fmt.Errorf("invalid note %q: %w", item, err)
		}
		start, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || start < 0 {
			return nil, fmt.Errorf("invalid start %q", item)
		}
		duration, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || duration <= 0 {
			return nil, fmt.Errorf("invalid duration %q", item)
		}
		velocity := uint64(100)
		if len(fields) == 4 {
			velocity, err = strconv.ParseUint(fields[3], 10, 7)
			if err != nil {
				return nil, fmt.Errorf("invalid velocity %q: %w", item, err)
			}
		}
		events = append(events, noteEvent{uint8(note), uint8(velocity), start, duration})
	}
	return events, nil
}

// ----- rendering ----- //

type trigger struct {
	frame    int
	on       bool
	note     uint8
	velocity uint8
}

// scripted plays note triggers into the engine at exact frames.
type scripted struct {
	e        *engine.Engine
	inner    beep.Streamer
	triggers []trigger
	frame    int
}

func newScripted(e *engine.Engine, script []noteEvent) (*scripted, int) {
	sr := e.SampleRate()
	var triggers []trigger
	end := 0
	for _, n := range script {
		on := int(math.Round(n.start * sr))
		off := int(math.Round((n.start + n.duration) * sr))
		triggers = append(triggers, trigger{on, true, n.note, n.velocity}, trigger{off, false, n.note, 0})
		end = max(end, off)
	}
	sort.SliceStable(triggers, func(i, j int) bool { return triggers[i].frame < triggers[j].frame })
	return &scripted{e: e, inner: audio.NewStreamer(e), triggers: triggers}, end
}

func (s *scripted) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		for len(s.triggers) > 0 && s.triggers[0].frame <= s.frame {
			t := s.triggers[0]
			if t.on {
				s.e.NoteOn(t.note, t.velocity)
			} else {
				s.e.NoteOff(t.note)
			}
			s.triggers = s.triggers[1:]
		}
		size := len(samples) - n
		if len(s.triggers) > 0 {
			size = min(size, s.triggers[0].frame-s.frame)
		}
		m, _ := s.inner.Stream(samples[n : n+size])
		n += m
		s.frame += m
	}
	return n, true
}

func (s *scripted) Err() error { return nil }

func render(w io.WriteSeeker, e *engine.Engine, script []noteEvent, tail, gain float64) error {
	s, end := newScripted(e, script)
	total := end + int(math.Round(tail*e.SampleRate()))
	var streamer beep.Streamer = s
	if gain != 1 {
		streamer = &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(gain), Silent: gain <= 0}
	}
	format := beep.Format{SampleRate: beep.SampleRate(int(e.SampleRate())), NumChannels: 2, Precision: 2}
	return wav.Encode(w, beep.Take(total, streamer), format)
}
