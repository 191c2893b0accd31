package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the construction-time wiring document (robot.yml).
type Config struct {
	Interfaces []InterfaceCfg `yaml:"interfaces" json:"interfaces"`
	Devices    []DeviceCfg    `yaml:"devices" json:"devices"`
	PortMap    PortMap        `yaml:"portMap" json:"portMap"`
}

// InterfaceCfg declares one communication bus. Impl, when set, is a pre-built
// handle injected programmatically; otherwise a transport builder for Type is
// consulted. The declared type is advisory: capability is checked structurally
// at call time, so an unrecognized type is warned about, not rejected.
type InterfaceCfg struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"` // e.g. "i2c", "modbus"
	Params map[string]any `yaml:"params,omitempty"`
	Impl   Transport      `yaml:"-"`
}

// DeviceCfg declares one device instance bound to a declared interface.
type DeviceCfg struct {
	ID          string         `yaml:"id"`
	Type        string         `yaml:"type"` // e.g. "romi", "mock"
	InterfaceID string         `yaml:"interfaceId"`
	Params      map[string]any `yaml:"params,omitempty"`
}

// PortMapEntry binds a logical channel to a physical port on a device.
type PortMapEntry struct {
	DeviceID       string `yaml:"deviceId"`
	DevicePortType string `yaml:"devicePortType"`
	DevicePort     int    `yaml:"devicePort"`
	Direction      string `yaml:"direction,omitempty"` // "IN", "OUT", "BOTH"
}

// PortBinding pairs a channel name with its entry.
type PortBinding struct {
	Channel string
	PortMapEntry
}

// PortMap preserves document order and any duplicate channel keys so that
// uniqueness can be enforced (fatally) when the router installs the mappings.
type PortMap []PortBinding

func (m *PortMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("portMap: expected a mapping, got %s", value.Tag)
	}
	out := make(PortMap, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var b PortBinding
		if err := value.Content[i].Decode(&b.Channel); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&b.PortMapEntry); err != nil {
			return err
		}
		out = append(out, b)
	}
	*m = out
	return nil
}

func (m PortMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, b := range m {
		var k, v yaml.Node
		if err := k.Encode(b.Channel); err != nil {
			return nil, err
		}
		if err := v.Encode(b.PortMapEntry); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &k, &v)
	}
	return node, nil
}
