package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// Load reads and validates a robot wiring document.
func Load(path string) (types.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML wiring document.
func Parse(b []byte) (types.Config, error) {
	var cfg types.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return types.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// Validate checks referential integrity of a wiring document. Duplicate
// channel names are deliberately not rejected here: that invariant belongs to
// router construction, which fails fatally on the first duplicate insert.
func Validate(cfg types.Config) error {
	devs := map[string]struct{}{}
	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id must be set", i)
		}
		if d.Type == "" {
			return fmt.Errorf("device %q: type must be set", d.ID)
		}
		devs[d.ID] = struct{}{}
	}
	for i, ic := range cfg.Interfaces {
		if ic.ID == "" {
			return fmt.Errorf("interfaces[%d]: id must be set", i)
		}
	}
	for _, b := range cfg.PortMap {
		if b.Channel == "" {
			return fmt.Errorf("portMap: empty channel name")
		}
		if _, ok := devs[b.DeviceID]; !ok {
			return fmt.Errorf("portMap %q: unknown deviceId %q", b.Channel, b.DeviceID)
		}
		if _, ok := types.ParsePortType(b.DevicePortType); !ok {
			return fmt.Errorf("portMap %q: unknown devicePortType %q", b.Channel, b.DevicePortType)
		}
		if _, ok := types.ParseDirection(b.Direction); !ok {
			return fmt.Errorf("portMap %q: unknown direction %q", b.Channel, b.Direction)
		}
	}
	return nil
}
