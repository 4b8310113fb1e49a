package irt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ModelStore persists fitted model parameters as indented JSON so a run
// can be compared against a previous fit of the same dataset.
type ModelStore struct {
	dir string
}

// NewModelStore creates a store rooted at dir.
func NewModelStore(dir string) *ModelStore {
	return &ModelStore{dir: dir}
}

// Save writes the model under name.json, creating the directory if
// needed.
func (s *ModelStore) Save(name string, model *Model) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s.json", name))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(model); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Load reads a previously saved model.
func (s *ModelStore) Load(name string) (*Model, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s.json", name))
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var model Model
	if err := json.NewDecoder(file).Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return &model, nil
}

// Path returns the file path a model name maps to.
func (s *ModelStore) Path(name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", name))
}
