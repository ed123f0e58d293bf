package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PresetStore persists named knob layouts as one JSON file: a map from
// preset name to its configuration list, weights included.
type PresetStore struct {
	path string
	mu   sync.Mutex
}

// NewPresetStore creates a store backed by the given file path. The file is
// created on first save.
func NewPresetStore(path string) *PresetStore {
	return &PresetStore{path: path}
}

// Save stores the layout under name, replacing any prior preset of that name.
func (ps *PresetStore) Save(name string, configs []Config) error {
	if name == "" {
		return fmt.Errorf("presets: empty name")
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := ps.read()
	if err != nil {
		return err
	}
	all[name] = configs
	return ps.write(all)
}

// Load returns the layout stored under name.
func (ps *PresetStore) Load(name string) ([]Config, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := ps.read()
	if err != nil {
		return nil, err
	}
	configs, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("presets: unknown preset %q", name)
	}
	return configs, nil
}

// List returns all preset names, sorted.
func (ps *PresetStore) List() ([]string, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := ps.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the preset stored under name, if present.
func (ps *PresetStore) Delete(name string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := ps.read()
	if err != nil {
		return err
	}
	if _, ok := all[name]; !ok {
		return fmt.Errorf("presets: unknown preset %q", name)
	}
	delete(all, name)
	return ps.write(all)
}

func (ps *PresetStore) read() (map[string][]Config, error) {
	data, err := os.ReadFile(ps.path)
	if os.IsNotExist(err) {
		return map[string][]Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presets: read %s: %w", ps.path, err)
	}
	all := map[string][]Config{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("presets: parse %s: %w", ps.path, err)
	}
	return all, nil
}

func (ps *PresetStore) write(all map[string][]Config) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("presets: encode: %w", err)
	}
	if dir := filepath.Dir(ps.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("presets: dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(ps.path, data, 0o644); err != nil {
		return fmt.Errorf("presets: write %s: %w", ps.path, err)
	}
	return nil
}
