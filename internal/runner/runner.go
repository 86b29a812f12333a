// Package runner starts a built image locally: it unpacks the image
// layers into a rootfs directory and launches the fixed entrypoint as
// exactly one child process.
//
// The runner owns only the bootstrap contract: one process, fixed argv,
// inherited stdio, exit code passed through. It provides no isolation,
// supervision, or restart logic; whatever the entrypoint does at
// runtime belongs to the application.
package runner

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/kiln/internal/image"
)

// whiteoutPrefix marks deleted paths in OCI layer tars.
const whiteoutPrefix = ".wh."

// Runner launches images from the local store.
type Runner struct {
	store  *image.Store
	logger *slog.Logger
}

// New creates a runner over the local store.
func New(store *image.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, logger: logger}
}

// Run unpacks the image and launches its entrypoint with the given
// extra environment. It returns the child's exit code. The argv is the
// one recorded at build time; it cannot be overridden here.
//
// A missing entrypoint file is a runtime failure: Run returns a
// non-zero exit code and an error, and nothing is retried.
func (r *Runner) Run(ctx context.Context, ref string, extraEnv []string) (int, error) {
	manifest, _, err := r.store.FetchManifest(ctx, ref)
	if err != nil {
		return 1, err
	}

	cfg, err := r.store.FetchImageConfig(ctx, manifest)
	if err != nil {
		return 1, err
	}

	if len(cfg.Config.Entrypoint) == 0 {
		return 1, fmt.Errorf("image %s has no entrypoint", ref)
	}

	rootfs, err := os.MkdirTemp("", "kiln-rootfs-*")
	if err != nil {
		return 1, fmt.Errorf("failed to create rootfs directory: %w", err)
	}
	defer os.RemoveAll(rootfs)

	r.logger.Debug("unpacking image", "ref", ref, "layers", len(manifest.Layers), "rootfs", rootfs)

	for _, desc := range manifest.Layers {
		rc, err := r.store.Fetch(ctx, desc)
		if err != nil {
			return 1, fmt.Errorf("failed to fetch layer %s: %w", desc.Digest, err)
		}
		err = applyLayer(rootfs, rc)
		rc.Close()
		if err != nil {
			return 1, fmt.Errorf("failed to apply layer %s: %w", desc.Digest, err)
		}
	}

	workdir := filepath.Join(rootfs, filepath.FromSlash(cfg.Config.WorkingDir))

	argv := cfg.Config.Entrypoint
	if err := checkEntrypoint(workdir, argv); err != nil {
		return 1, err
	}

	env := os.Environ()
	env = append(env, rewriteEnv(cfg.Config.Env, rootfs)...)
	env = append(env, extraEnv...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.logger.Info("launching entrypoint", "ref", ref, "argv", argv, "workdir", cfg.Config.WorkingDir)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("failed to launch entrypoint: %w", err)
	}

	return 0, nil
}

// checkEntrypoint verifies that an entrypoint referencing a workdir
// file actually has that file present in the unpacked image. Absolute
// argv[0] resolves on the host and is checked by exec itself.
func checkEntrypoint(workdir string, argv []string) error {
	for _, arg := range argv[1:] {
		// Heuristic: non-flag arguments with a file extension are
		// treated as workdir-relative files (e.g. "main.py"), so a
		// missing script fails with a diagnosable message instead of
		// whatever the interpreter prints.
		if strings.HasPrefix(arg, "-") || filepath.IsAbs(arg) || filepath.Ext(arg) == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(workdir, filepath.FromSlash(arg))); os.IsNotExist(err) {
			return fmt.Errorf("entrypoint file %s is missing from the image workdir", arg)
		}
	}
	return nil
}

// rewriteEnv maps image-absolute env paths onto the unpacked rootfs so
// values like PYTHONPATH point at real directories.
func rewriteEnv(env []string, rootfs string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(v, "/") {
			if _, err := os.Stat(filepath.Join(rootfs, filepath.FromSlash(v))); err == nil {
				out = append(out, k+"="+filepath.Join(rootfs, filepath.FromSlash(v)))
				continue
			}
		}
		out = append(out, kv)
	}
	return out
}

// applyLayer extracts one gzip-compressed layer tar into the rootfs,
// honoring OCI whiteouts. Entries escaping the rootfs are rejected.
func applyLayer(rootfs string, layer io.Reader) error {
	gz, err := gzip.NewReader(layer)
	if err != nil {
		return fmt.Errorf("failed to decompress layer: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read layer tar: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("layer entry %q escapes the rootfs", hdr.Name)
		}

		base := filepath.Base(name)
		if strings.HasPrefix(base, whiteoutPrefix) {
			target := filepath.Join(rootfs, filepath.Dir(name), strings.TrimPrefix(base, whiteoutPrefix))
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to apply whiteout %s: %w", hdr.Name, err)
			}
			continue
		}

		dest := filepath.Join(rootfs, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(hdr.Mode)&os.ModePerm|0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&os.ModePerm|0o600)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", hdr.Name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
			}
			os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			linkTarget := filepath.Join(rootfs, filepath.FromSlash(hdr.Linkname))
			if !filepath.IsLocal(filepath.FromSlash(hdr.Linkname)) {
				return fmt.Errorf("layer hardlink %q escapes the rootfs", hdr.Linkname)
			}
			os.Remove(dest)
			if err := os.Link(linkTarget, dest); err != nil {
				return fmt.Errorf("failed to create hardlink %s: %w", hdr.Name, err)
			}
		default:
			// Device nodes and the like need privileges the runner does
			// not have; skip them rather than fail the whole unpack.
			continue
		}
	}
}
