package deps

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// LockfileName is written next to the bakefile after a successful build.
const LockfileName = "kiln.lock"

// Lockfile pins resolved dependency versions for reproducible builds.
//
// Invariants:
// - Version must be 1 (current format version)
// - Each package entry must carry the dependency layer digest
// - Generated timestamp must be set when entries exist
type Lockfile struct {
	Version   int                    `yaml:"lockfile_version"`
	Generated time.Time              `yaml:"generated"`
	Layer     string                 `yaml:"layer"`
	Packages  map[string]PackageLock `yaml:"packages"`
}

// PackageLock is a pinned package version. Immutable after creation.
type PackageLock struct {
	Requested string `yaml:"requested"` // Original constraint
	Resolved  string `yaml:"resolved"`  // Exact version
}

// NewLockfile creates a lockfile with the current format version.
func NewLockfile(layerDigest string) *Lockfile {
	return &Lockfile{
		Version:   1,
		Generated: time.Now().UTC(),
		Layer:     layerDigest,
		Packages:  make(map[string]PackageLock),
	}
}

// Pin records a resolved package.
func (l *Lockfile) Pin(name string, lock PackageLock) error {
	if lock.Resolved == "" {
		return fmt.Errorf("package %q: resolved version is required", name)
	}
	if l.Packages == nil {
		l.Packages = make(map[string]PackageLock)
	}
	l.Packages[name] = lock
	return nil
}

// Validate checks lockfile invariants.
func (l *Lockfile) Validate() error {
	if l.Version != 1 {
		return fmt.Errorf("unsupported lockfile version: %d", l.Version)
	}
	if len(l.Packages) > 0 {
		if l.Generated.IsZero() {
			return fmt.Errorf("generated timestamp is required")
		}
		if l.Layer == "" {
			return fmt.Errorf("dependency layer digest is required")
		}
	}
	for name, lock := range l.Packages {
		if lock.Resolved == "" {
			return fmt.Errorf("package %q: resolved version is required", name)
		}
	}
	return nil
}

// Write validates and writes the lockfile to path.
func (l *Lockfile) Write(path string) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid lockfile: %w", err)
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode lockfile: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}

	return nil
}

// ReadLockfile reads and validates a lockfile from path.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	var l Lockfile
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile: %w", err)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	return &l, nil
}
