// Package deps provisions the declared third-party packages into a
// staged directory that becomes the image's dependency layer, and pins
// the resolved versions in a lockfile.
package deps

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Requirement is a single parsed line of the dependency manifest.
type Requirement struct {
	// Name is the normalized package name (lowercase, dashes).
	Name string
	// Operator is one of "", "==", ">=", "<=", "~=".
	Operator string
	// Version is the declared version, empty when unconstrained.
	Version string
	// Raw is the original manifest line.
	Raw string
}

// Manifest is the parsed dependency manifest file.
type Manifest struct {
	Path         string
	Requirements []Requirement
	// Raw is the exact file content; it feeds the dependency layer
	// cache key so a byte-level edit invalidates the layer.
	Raw []byte
}

// constraint operators in match order; two-character operators first.
var operators = []string{"==", ">=", "<=", "~="}

// ParseManifestFile reads and parses a requirements manifest.
// A missing file is a fatal build error for the caller to surface.
func ParseManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dependency manifest %s: %w", path, ErrManifestMissing)
		}
		return nil, fmt.Errorf("failed to read dependency manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("dependency manifest %s: %w", path, err)
	}
	m.Path = path

	return m, nil
}

// ParseManifest parses manifest content: one requirement per line,
// blank lines and '#' comments skipped.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Raw: data}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		req, err := parseRequirement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan manifest: %w", err)
	}

	if len(m.Requirements) == 0 {
		return nil, fmt.Errorf("manifest declares no requirements")
	}

	return m, nil
}

func parseRequirement(line string) (Requirement, error) {
	// Strip trailing comments
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}

	req := Requirement{Raw: line}

	for _, op := range operators {
		if idx := strings.Index(line, op); idx >= 0 {
			req.Name = NormalizeName(line[:idx])
			req.Operator = op
			req.Version = strings.TrimSpace(line[idx+len(op):])
			if req.Version == "" {
				return req, fmt.Errorf("requirement %q has operator but no version", line)
			}
			break
		}
	}
	if req.Operator == "" {
		req.Name = NormalizeName(line)
	}

	if req.Name == "" {
		return req, fmt.Errorf("requirement %q has no package name", line)
	}

	return req, nil
}

// NormalizeName lowercases a package name and folds underscores and
// dots to dashes, so manifest names and installed names compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// Constraint converts the requirement to a semver constraint.
// Unconstrained requirements match any version.
func (r Requirement) Constraint() (*semver.Constraints, error) {
	var expr string
	switch r.Operator {
	case "":
		expr = "*"
	case "==":
		expr = "= " + r.Version
	case ">=", "<=":
		expr = r.Operator + " " + r.Version
	case "~=":
		// Compatible release: same as a semver tilde range.
		expr = "~" + r.Version
	default:
		return nil, fmt.Errorf("unsupported operator %q", r.Operator)
	}

	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("requirement %s: invalid constraint %q: %w", r.Name, expr, err)
	}
	return c, nil
}

// Satisfied reports whether the resolved version satisfies the
// requirement. Versions that do not parse as semver are accepted only
// by unconstrained requirements.
func (r Requirement) Satisfied(resolved string) (bool, error) {
	if r.Operator == "" {
		return true, nil
	}

	c, err := r.Constraint()
	if err != nil {
		return false, err
	}

	v, err := semver.NewVersion(resolved)
	if err != nil {
		return false, fmt.Errorf("requirement %s: resolved version %q is not semver: %w", r.Name, resolved, err)
	}

	return c.Check(v), nil
}
