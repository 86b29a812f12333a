package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Sentinel errors for the provisioning failure taxonomy. All of them
// abort the build; none are retried.
var (
	// ErrManifestMissing means the dependency manifest file is absent.
	ErrManifestMissing = errors.New("manifest file does not exist")
	// ErrResolution means a declared package could not be resolved or
	// installed.
	ErrResolution = errors.New("dependency resolution failed")
)

// Installer abstracts the package installer tool so the provisioner can
// be exercised in tests without a working pip on the host.
type Installer interface {
	// SelfUpgrade upgrades the installer tool itself. It runs before
	// Install so an outdated resolver cannot fail the manifest.
	SelfUpgrade(ctx context.Context) error

	// Install installs every requirement of the manifest file into
	// targetDir, which becomes the dependency layer content.
	Install(ctx context.Context, manifestPath, targetDir string) error
}

// ExecInstaller shells out to a pip-compatible installer.
type ExecInstaller struct {
	// Tool is the installer executable, e.g. "pip".
	Tool string
	// Stdout and Stderr receive installer output. Defaults to the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecInstaller creates an installer backed by the given tool.
func NewExecInstaller(tool string) *ExecInstaller {
	return &ExecInstaller{
		Tool:   tool,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// SelfUpgrade runs `<tool> install --upgrade <tool>`.
func (e *ExecInstaller) SelfUpgrade(ctx context.Context) error {
	if err := e.run(ctx, "install", "--upgrade", e.Tool); err != nil {
		return fmt.Errorf("installer self-upgrade failed: %w", err)
	}
	return nil
}

// Install runs `<tool> install --no-cache-dir --target <dir> -r <manifest>`.
func (e *ExecInstaller) Install(ctx context.Context, manifestPath, targetDir string) error {
	err := e.run(ctx, "install", "--no-cache-dir", "--target", targetDir, "-r", manifestPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return nil
}

func (e *ExecInstaller) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, e.Tool, args...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", e.Tool, args, err)
	}
	return nil
}
