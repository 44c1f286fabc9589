package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/fxstream/host"
	"github.com/gogpu/fxstream/scene"
)

var errConfig = errors.New("fxstream: invalid config")

// streamConfig is one simulated output stream.
type streamConfig struct {
	Name   string `yaml:"name"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

// config is the run configuration. It is read from a YAML file and then
// overridden by flags.
type config struct {
	Backend  string         `yaml:"backend"`
	Timeout  time.Duration  `yaml:"timeout"`
	Frames   int            `yaml:"frames"`
	Width    uint32         `yaml:"width"`
	Height   uint32         `yaml:"height"`
	Streams  []streamConfig `yaml:"streams"`
	Scenes   []string       `yaml:"scenes"`
	Schema   string         `yaml:"schema"`
	Strength int            `yaml:"strength"`
	LogLevel string         `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Backend:  "noop",
		Timeout:  5 * time.Second,
		Frames:   120,
		Width:    640,
		Height:   360,
		Streams:  []streamConfig{{Name: "main", Width: 1280, Height: 720}},
		Scenes:   []string{"Transfer"},
		Strength: -1,
		LogLevel: "info",
	}
}

// loadConfig reads path over the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", errConfig, path, err)
	}
	return cfg, nil
}

// sceneIndices resolves the configured scene names.
func (c config) sceneIndices() ([]uint32, error) {
	out := make([]uint32, 0, len(c.Scenes))
	for _, name := range c.Scenes {
		i, ok := scene.ByName(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: unknown scene %q", errConfig, name)
		}
		out = append(out, uint32(i))
	}
	return out, nil
}

// streams returns the configured streams with handles starting at 1.
func (c config) streams() ([]host.Stream, error) {
	out := make([]host.Stream, 0, len(c.Streams))
	for i, s := range c.Streams {
		if s.Width == 0 || s.Height == 0 {
			return nil, fmt.Errorf("%w: stream %q has size %dx%d", errConfig, s.Name, s.Width, s.Height)
		}
		out = append(out, host.Stream{Handle: host.StreamHandle(i + 1), Name: s.Name, Width: s.Width, Height: s.Height})
	}
	return out, nil
}

// slots returns the scene table with the strength override applied to
// every slot that takes one.
func (c config) slots() []scene.Slot {
	slots := scene.Table()
	if c.Strength < 0 {
		return slots
	}
	for i := range slots {
		if slots[i].HasStrength {
			slots[i].Strength = uint32(c.Strength)
		}
	}
	return slots
}

func (c config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("%w: %v", errConfig, err)
	}
	return l, nil
}
