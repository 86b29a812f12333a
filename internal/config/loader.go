package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads, defaults, and validates a bakefile from a YAML file.
// Structural validation and schema validation both run; the first
// failing pass aborts with all of its findings listed.
func Load(path string) (*Bakefile, error) {
	// Security: Use os.OpenRoot to prevent path traversal attacks
	// resolving symlinks or escaping the intended directory.
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open bakefile directory: %w", err)
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, fmt.Errorf("failed to open bakefile: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads and validates a bakefile from an io.Reader.
// This is useful for testing with in-memory YAML data.
func LoadFromReader(r io.Reader) (*Bakefile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bakefile: %w", err)
	}

	bf, err := decodeStrict(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(bf)

	if err := Validate(bf); err != nil {
		return nil, err
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	return bf, nil
}

// decodeStrict parses bakefile YAML, rejecting unknown fields.
func decodeStrict(data []byte) (*Bakefile, error) {
	var bf Bakefile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict parsing - reject unknown fields

	if err := decoder.Decode(&bf); err != nil {
		return nil, fmt.Errorf("failed to parse bakefile YAML: %w", err)
	}

	return &bf, nil
}

// applyDefaults fills in the documented defaults after decoding.
// Explicit bakefile values always win.
func applyDefaults(bf *Bakefile) {
	if bf.Version == 0 {
		bf.Version = 1
	}
	if bf.Workdir == "" {
		bf.Workdir = DefaultWorkdir
	}
	if bf.Dependencies.Installer == "" {
		bf.Dependencies.Installer = DefaultInstaller
	}
	if bf.Image.Tag == "" {
		bf.Image.Tag = DefaultImageTag
	}
}
