package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func expectEqual(t *testing.T, actual, expected interface{}) {
	t.Helper()
	if actual != expected {
		t.Errorf("expected %v, but got: %v", expected, actual)
	}
}

func expectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	tests := []struct {
		key      string
		expected int
	}{
		{"audio.sample_rate", 48000},
		{"audio.buffer_size", 512},
		{"midi.queue_size", 128},
		{"oscillator.expected_voices", 4},
		{"parameters.max_modulation_depth", 2},
		{"engine.command_queue_size", 256},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			expectEqual(t, c.Int(tc.key, -1), tc.expected)
		})
	}
	expectEqual(t, c.String("audio.backend", ""), "oto")
	expectEqual(t, c.Float("oscillator.auto_gain.square", 0), 0.5)
	expectEqual(t, c.Duration("engine.command_timeout", 0), time.Second)
	expectEqual(t, c.Bool("engine.autostart", false), true)
	expectEqual(t, len(c.FloatSlice("audio.fallback_sample_rates")), 2)
	expectEqual(t, c.Int("nope.nothing", 7), 7)
}

func TestSetAndGet(t *testing.T) {
	c := Default()
	c.Set("audio.sample_rate", 44100)
	c.Set("new.section.key", "x")
	expectEqual(t, c.Int("audio.sample_rate", 0), 44100)
	expectEqual(t, c.String("new.section.key", ""), "x")
	_, ok := c.Get("audio.sample_rate.deeper")
	expectEqual(t, ok, false)
}

func TestEnvOverrides(t *testing.T) {
	c := Default()
	c.ApplyEnv([]string{
		"DESKTOP_SYNTH_AUDIO_SAMPLE_RATE=44100",
		"DESKTOP_SYNTH_AUDIO_BACKEND=headless",
		"DESKTOP_SYNTH_ENGINE_AUTOSTART=false",
		"DESKTOP_SYNTH_MIDI_QUEUE_SIZE=lots",
		"DESKTOP_SYNTH_AUDIO_FALLBACK_SAMPLE_RATES=96000,48000",
		"OTHER_AUDIO_SAMPLE_RATE=1",
	})
	expectEqual(t, c.Int("audio.sample_rate", 0), 44100)
	expectEqual(t, c.String("audio.backend", ""), "headless")
	expectEqual(t, c.Bool("engine.autostart", true), false)
	expectEqual(t, c.Int("midi.queue_size", 0), 128)
	expectEqual(t, c.FloatSlice("audio.fallback_sample_rates")[0], 96000.0)
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synth.yaml")
	expectNoError(t, os.WriteFile(path, []byte("audio:\n  buffer_size: 256\n"), 0644))
	c, err := Load(path)
	expectNoError(t, err)
	expectEqual(t, c.Int("audio.buffer_size", 0), 256)
	expectEqual(t, c.Int("audio.sample_rate", 0) > 0, true)

	out := filepath.Join(dir, "saved.yaml")
	expectNoError(t, c.Save(out))
	again, err := Load(out)
	expectNoError(t, err)
	expectEqual(t, again.Int("audio.buffer_size", 0), 256)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	expectEqual(t, err != nil, true)
}
