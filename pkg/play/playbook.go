package play

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPlaybook reads a YAML playbook file holding an ordered list of plays.
// Structural validation against the module registry happens later, when the
// scheduler picks each play up.
func LoadPlaybook(path string) ([]*Play, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("playbook %s not found", path)
		}
		return nil, fmt.Errorf("failed to read playbook %s: %w", path, err)
	}

	var plays []*Play
	if err := yaml.Unmarshal(data, &plays); err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", path, err)
	}
	if len(plays) == 0 {
		return nil, fmt.Errorf("playbook %s declares no plays", path)
	}
	return plays, nil
}
