package deps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Provisioner executes the dependency installation stage: installer
// self-upgrade first, then a manifest install into a staging directory.
// It verifies afterwards that every declared requirement actually
// resolved and is importable from the staged tree.
type Provisioner struct {
	installer Installer
	logger    *slog.Logger
}

// Provisioned is the successful result of a provisioning run.
type Provisioned struct {
	// StageDir holds the installed package tree; it is packed verbatim
	// into the dependency layer.
	StageDir string
	// Resolved maps normalized package names to exact versions.
	Resolved map[string]string
}

// NewProvisioner creates a provisioner using the given installer.
func NewProvisioner(installer Installer, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{installer: installer, logger: logger}
}

// Provision installs the manifest into stageDir.
// Fail-fast: the first failing step aborts with no partial result, and
// nothing is retried.
func (p *Provisioner) Provision(ctx context.Context, m *Manifest, stageDir string, skipUpgrade bool) (*Provisioned, error) {
	if !skipUpgrade {
		p.logger.Debug("upgrading installer before manifest install")
		if err := p.installer.SelfUpgrade(ctx); err != nil {
			return nil, err
		}
	}

	p.logger.Info("installing dependency manifest",
		"manifest", m.Path,
		"requirements", len(m.Requirements))

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := p.installer.Install(ctx, m.Path, stageDir); err != nil {
		return nil, err
	}

	resolved, err := installedVersions(stageDir)
	if err != nil {
		return nil, err
	}

	if err := verifyResolved(m, resolved); err != nil {
		return nil, err
	}

	return &Provisioned{StageDir: stageDir, Resolved: resolved}, nil
}

// installedVersions reads package names and versions from the
// *.dist-info directories the installer leaves in the staged tree.
func installedVersions(stageDir string) (map[string]string, error) {
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	resolved := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
			continue
		}

		// dist-info directories are named <name>-<version>.dist-info
		stem := strings.TrimSuffix(entry.Name(), ".dist-info")
		idx := strings.LastIndex(stem, "-")
		if idx <= 0 || idx == len(stem)-1 {
			return nil, fmt.Errorf("unrecognized dist-info directory %q", entry.Name())
		}

		name := NormalizeName(stem[:idx])
		resolved[name] = stem[idx+1:]
	}

	return resolved, nil
}

// verifyResolved checks that every declared requirement landed in the
// staged tree at a version satisfying its constraint.
func verifyResolved(m *Manifest, resolved map[string]string) error {
	var failures []string

	for _, req := range m.Requirements {
		version, ok := resolved[req.Name]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: not installed", req.Name))
			continue
		}

		ok, err := req.Satisfied(version)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: installed %s does not satisfy %s%s", req.Name, version, req.Operator, req.Version))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrResolution, strings.Join(failures, "\n  - "))
	}

	return nil
}

// StagePath returns a staging directory path under root for a build.
func StagePath(root, buildID string) string {
	return filepath.Join(root, "stage", buildID)
}
