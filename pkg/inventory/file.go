package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// inventoryFile is the on-disk YAML shape of a static inventory.
type inventoryFile struct {
	Hosts  []*Host  `yaml:"hosts"`
	Groups []*Group `yaml:"groups,omitempty"`
}

// LoadFile reads a static inventory from a YAML file.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("inventory %s not found", path)
		}
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}

	var f inventoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}
	if len(f.Hosts) == 0 {
		return nil, fmt.Errorf("inventory %s declares no hosts", path)
	}
	return NewStatic(f.Hosts, f.Groups)
}
