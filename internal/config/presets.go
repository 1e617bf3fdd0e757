package config

import "sort"

func preset(mut func(c *Config)) *Config {
	c := DefaultConfig()
	mut(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"world": {
		"earth": preset(func(c *Config) {}),
		"moon": preset(func(c *Config) {
			c.Options.Gravity = [3]float64{0, -1.62, 0}
		}),
		"fixed": preset(func(c *Config) {
			c.Options.Fixed = true
			c.Options.FPS = 30
		}),
	},
	"scene": {
		"drop": preset(func(c *Config) {
			c.Scene.Crates = 12
		}),
		"shatter": preset(func(c *Config) {
			c.Scene.Crates = 4
			c.Scene.Height = 12
			c.Scene.Breakable = true
		}),
		"stress": preset(func(c *Config) {
			c.Scene.Crates = 400
			c.Options.FPS = 120
		}),
	},
	"budget": {
		"tiny": preset(func(c *Config) {
			c.Capacity.MaxBody = 16
			c.Capacity.MaxContact = 4
			c.Capacity.MaxCharacter = 0
			c.Capacity.MaxCar = 0
			c.Capacity.MaxSoftPoint = 0
			c.Scene.Crates = 4
		}),
		"remote": preset(func(c *Config) {
			c.Transport.Kind = TransportWebSocket
		}),
	},
}

func GetPreset(group, name string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	cfg, ok := groupPresets[name]
	if !ok {
		return nil
	}
	return cfg
}

// ListPresets returns the preset names of a group in sorted order.
func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Groups lists the preset groups in sorted order.
func Groups() []string {
	groups := make([]string, 0, len(Presets))
	for g := range Presets {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
