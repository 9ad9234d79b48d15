package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a snapshot from a YAML file.
func LoadYAML(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	s := &Snapshot{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return s, nil
}

// WriteYAML writes the snapshot to a YAML file at the given path.
func (s *Snapshot) WriteYAML(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ToYAML returns the snapshot as a YAML byte slice.
func (s *Snapshot) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}
