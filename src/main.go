package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/audio"
	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/engine"
	"github.com/jinjor/desktop-synth/src/preset"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	backend    = flag.String("backend", "", "audio backend: oto, beep or headless (default audio.backend)")
	midiPort   = flag.Int("midi-port", -1, "MIDI input port (default midi.port)")
	report     = flag.Bool("report", false, "print spectrum reports at 60 Hz")
	presetDir  = flag.String("preset", "presets", "preset directory")
	load       = flag.String("load", "", "preset to load on start")
	wavetables = flag.String("wavetables", "", "wavetable file written by gentables")
)

var errQuit = errors.New("quit")

func main() {
	flag.Parse()
	log.SetFlags(log.Lshortfile)
	log.Printf("NumCPU: %v\n", runtime.NumCPU())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	if *backend != "" {
		cfg.Set("audio.backend", *backend)
	}
	if *midiPort >= 0 {
		cfg.Set("midi.port", *midiPort)
	}
	output, closeOutput, err := newOutput(cfg)
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	defer closeOutput()

	e, err := engine.New(cfg, output, audio.NewMidiInput(cfg.Int("midi.port", 0)))
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	if *wavetables != "" {
		if err := useWavetables(e, *wavetables); err != nil {
			log.Fatalf("error: %v\n", err)
		}
	}
	store := preset.NewStore(*presetDir)
	if *load != "" {
		if err := loadPreset(e, store, *load); err != nil {
			log.Fatalf("error: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if e.AutoRun() {
		if err := e.SetState(ctx, engine.Running); err != nil {
			log.Fatalf("error: %v\n", err)
		}
	}
	// audio stream first, then the MIDI port; the device closes last
	defer func() {
		if err := e.SetState(context.Background(), engine.Stopped); err != nil {
			log.Printf("failed to stop engine: %v\n", err)
		}
	}()

	out := &syncWriter{w: os.Stdout}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-e.Failures():
			return fmt.Errorf("audio session failed: %w", err)
		}
	})
	g.Go(func() error {
		return receiveCommands(ctx, os.Stdin, out, &app{e: e, store: store, cfg: cfg})
	})
	if *report {
		g.Go(func() error {
			return sendReports(ctx, out, e)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		log.Printf("error: %v\n", err)
	}
	log.Println("main() ended.")
}

// newOutput picks the audio driver. The returned func releases the device.
func newOutput(cfg *config.Config) (engine.Driver, func(), error) {
	switch b := cfg.String("audio.backend", "oto"); b {
	case "oto":
		o, err := audio.NewOutput(cfg)
		if err != nil {
			return nil, nil, err
		}
		return o, func() {
			if err := o.Close(); err != nil {
				log.Printf("failed to close audio output: %v\n", err)
			}
		}, nil
	case "beep":
		return audio.NewBeepOutput(cfg.Duration("audio.latency", 100*time.Millisecond)), func() {}, nil
	case "headless":
		return audio.Headless{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", b)
	}
}

func useWavetables(e *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	wts, err := dsp.LoadWavetables(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return e.UseWavetables(wts)
}

func loadPreset(e *engine.Engine, store *preset.Store, name string) error {
	patch, err := store.Load(name)
	if err != nil {
		return err
	}
	_, err = e.Restore(patch)
	return err
}

// ----- commands ----- //

type app struct {
	e     *engine.Engine
	store *preset.Store
	cfg   *config.Config
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, line+"\n")
}

// receiveCommands runs one command per line until EOF, "quit" or ctx is
// done. Replies are prefixed with "ok" or "error".
func receiveCommands(ctx context.Context, r io.Reader, out *syncWriter, a *app) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Println("receiveCommands() interrupted")
			return nil
		case err := <-errCh:
			log.Println("receiveCommands() ended.")
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			log.Printf("received: %s\n", line)
			command, err := engine.ParseCommand(line)
			if err != nil {
				out.WriteLine("error " + err.Error())
				continue
			}
			if command[0] == "quit" {
				return errQuit
			}
			reply, err := a.run(ctx, command)
			if err != nil {
				out.WriteLine("error " + err.Error())
				continue
			}
			if reply == "" {
				out.WriteLine("ok")
			} else {
				out.WriteLine("ok " + strings.ReplaceAll(reply, "\n", "\nok "))
			}
		}
	}
}

// run handles the commands that touch files and passes the rest to
// the engine.
func (a *app) run(ctx context.Context, command []string) (string, error) {
	switch command[0] {
	case "preset":
		return a.preset(command[1:])
	case "save_config":
		if len(command) != 2 {
			return "", fmt.Errorf("%w: usage: save_config PATH", engine.ErrCommand)
		}
		return "", a.cfg.Save(command[1])
	case "state":
		if len(command) == 2 {
			s, err := engine.ParseState(command[1])
			if err != nil {
				return "", err
			}
			return "", a.e.SetState(ctx, s)
		}
	}
	return a.e.Apply(command)
}

func (a *app) preset(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: usage: preset list|load NAME|save NAME|remove NAME|show NAME", engine.ErrCommand)
	}
	if args[0] == "list" {
		names, err := a.store.List()
		return strings.Join(names, "\n"), err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: usage: preset %s NAME", engine.ErrCommand, args[0])
	}
	switch args[0] {
	case "load":
		return "", loadPreset(a.e, a.store, args[1])
	case "save":
		return "", a.store.Save(args[1], a.e.Snapshot())
	case "remove":
		return "", a.store.Remove(args[1])
	case "show":
		patch, err := a.store.Load(args[1])
		if err != nil {
			return "", err
		}
		data, err := yaml.Marshal(patch)
		return strings.TrimSpace(string(data)), err
	}
	return "", fmt.Errorf("%w: unknown preset command %q", engine.ErrCommand, args[0])
}

// ----- reports ----- //

func sendReports(ctx context.Context, out *syncWriter, e *engine.Engine) error {
	t := time.NewTicker(time.Second / 60)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sendReports() ended.")
			return nil
		case <-t.C:
			result := e.Spectrum()
			if result == nil {
				continue
			}
			var b strings.Builder
			b.WriteString("fft")
			for _, value := range result {
				b.WriteByte(' ')
				b.WriteString(strconv.FormatFloat(float64(value), 'f', 6, 32))
			}
			out.WriteLine(b.String())
			out.WriteLine("level " + strconv.FormatFloat(float64(e.Level()), 'f', 6, 32))
		}
	}
}
