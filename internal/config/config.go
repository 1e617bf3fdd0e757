package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDuration = 5.0
	DefaultCrates   = 8
	DefaultHeight   = 6.0
	DefaultAddr     = ":8787"
	DefaultURL      = "ws://localhost:8787/sim"
)

// Transport kinds.
const (
	TransportPipe      = "pipe"
	TransportWebSocket = "websocket"
)

type Config struct {
	Options   protocol.Options `yaml:"options"`
	Capacity  layout.Capacity  `yaml:"capacity"`
	Transport TransportConfig  `yaml:"transport"`
	Log       LogConfig        `yaml:"log"`
	Runtime   RuntimeConfig    `yaml:"runtime"`
	Scene     SceneConfig      `yaml:"scene"`
	Duration  float64          `yaml:"duration"`
	Seed      uint64           `yaml:"seed"`
}

type TransportConfig struct {
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	Addr string `yaml:"addr"`
	// Transfer lets the in-process pipe move buffer ownership.
	Transfer bool `yaml:"transfer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RuntimeConfig struct {
	Path string `yaml:"path"`
}

// SceneConfig describes the demo objects a run adds.
type SceneConfig struct {
	Crates    int     `yaml:"crates"`
	Height    float64 `yaml:"height"`
	Breakable bool    `yaml:"breakable"`
	Ground    bool    `yaml:"ground"`
}

func DefaultConfig() *Config {
	return &Config{
		Options:  protocol.DefaultOptions(),
		Capacity: layout.DefaultCapacity(),
		Transport: TransportConfig{
			Kind:     TransportPipe,
			URL:      DefaultURL,
			Addr:     DefaultAddr,
			Transfer: true,
		},
		Log: LogConfig{Level: "info"},
		Scene: SceneConfig{
			Crates: DefaultCrates,
			Height: DefaultHeight,
			Ground: true,
		},
		Duration: DefaultDuration,
		Seed:     1,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Options = cfg.Options.WithDefaults()
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportPipe, TransportWebSocket:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport.Kind)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Duration < 0 {
		return fmt.Errorf("config: negative duration %v", c.Duration)
	}
	return nil
}

// LogLevel parses the configured level, falling back to info.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Descriptors builds the scene's objects: an optional static ground and a
// column of falling crates.
func (c *Config) Descriptors() []body.Descriptor {
	var out []body.Descriptor
	if c.Scene.Ground {
		out = append(out, body.Descriptor{
			Name:  "ground",
			Type:  "box",
			Shape: body.Shape{Size: mgl64.Vec3{40, 1, 40}},
			Pose:  body.Pose{Position: mgl64.Vec3{0, -0.5, 0}},
		})
	}
	for i := 0; i < c.Scene.Crates; i++ {
		d := body.Descriptor{
			Name:     fmt.Sprintf("crate%d", i),
			Type:     "box",
			Shape:    body.Shape{Size: mgl64.Vec3{1, 1, 1}},
			Pose:     body.Pose{Position: mgl64.Vec3{float64(i%4) * 1.5, c.Scene.Height + float64(i/4)*1.5, 0}},
			Mass:     1,
			Material: "wood",
		}
		if c.Scene.Breakable {
			opts := body.DefaultBreakOptions()
			opts.MaxImpulse = 5
			d.Breakable = true
			d.Break = &opts
		}
		out = append(out, d)
	}
	return out
}
