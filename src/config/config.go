// Package config holds process-wide settings addressed by dotted keys such
// as "audio.sample_rate".
package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override, e.g.
// DESKTOP_SYNTH_AUDIO_SAMPLE_RATE=44100.
const EnvPrefix = "DESKTOP_SYNTH_"

//go:embed default.yaml
var defaultYAML []byte

// Config is safe for concurrent use. Readers vastly outnumber writers.
type Config struct {
	mu   sync.RWMutex
	data map[string]any
}

// Default returns the embedded defaults.
func Default() *Config {
	c := &Config{data: map[string]any{}}
	if err := c.Merge(defaultYAML); err != nil {
		log.Panicf("failed to parse default config: %v", err)
	}
	return c
}

// Load layers the file at path (if any) and environment overrides over the
// defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := c.Merge(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	c.ApplyEnv(os.Environ())
	return c, nil
}

// Merge overlays a YAML document. Mappings merge key by key, anything else
// replaces.
func (c *Config) Merge(doc []byte) error {
	var m map[string]any
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	merge(c.data, m)
	return nil
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		existing, ok := dst[k].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[k] = existing
		}
		merge(existing, sub)
	}
}

// ApplyEnv applies DESKTOP_SYNTH_<SECTION>_<KEY> entries of environ to
// existing scalar keys. Values are parsed as the type already stored.
func (c *Config) ApplyEnv(environ []string) {
	env := map[string]string{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	if len(env) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for section, v := range c.data {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for key, old := range m {
			name := EnvPrefix + strings.ToUpper(section+"_"+key)
			s, ok := env[name]
			if !ok {
				continue
			}
			nv, err := parseLike(old, s)
			if err != nil {
				log.Printf("WARN: ignoring %s: %v\n", name, err)
				continue
			}
			m[key] = nv
		}
	}
}

func parseLike(old any, s string) (any, error) {
	switch old.(type) {
	case int:
		return strconv.Atoi(s)
	case float64:
		return strconv.ParseFloat(s, 64)
	case bool:
		return strconv.ParseBool(s)
	case string:
		return s, nil
	case []any:
		var out []any
		for _, f := range strings.Split(s, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot override %T", old)
}

// Get returns the raw value at a dotted key.
func (c *Config) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var cur any = c.data
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set creates intermediate mappings as needed.
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	segs := strings.Split(key, ".")
	m := c.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = value
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// Int returns def when key is missing or not a number.
func (c *Config) Int(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return int(f)
}

func (c *Config) Float(key string, def float64) float64 {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (c *Config) String(key string, def string) string {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Duration accepts "250ms" style strings or a number of seconds.
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return def
		}
		return d
	}
	if f, ok := toFloat(v); ok {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

// FloatSlice returns nil when key is missing or holds non-numbers.
func (c *Config) FloatSlice(key string) []float64 {
	v, ok := c.Get(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, x := range list {
		f, ok := toFloat(x)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// Save writes the current state as YAML.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := yaml.Marshal(c.data)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
