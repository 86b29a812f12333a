package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/reglet-dev/kiln/internal/config"
	"github.com/reglet-dev/kiln/internal/deps"
	"github.com/reglet-dev/kiln/internal/image"
	"github.com/reglet-dev/kiln/internal/scan"
)

// BaseResolver makes the base image available in the local store and
// returns the exact local reference it was tagged under. The registry
// client implements this; tests use a fake.
type BaseResolver interface {
	ResolveBase(ctx context.Context, base config.BaseSection) (string, error)
}

// Options control build behavior.
type Options struct {
	// NoCache bypasses the dependency layer cache.
	NoCache bool
	// Scanner, when set, runs the pre-copy secret scan.
	Scanner *scan.Scanner
	// ScanWarnOnly downgrades secret findings from fatal to a warning.
	ScanWarnOnly bool
}

// Engine executes the build pipeline.
type Engine struct {
	store     *image.Store
	cache     *image.Cache
	resolver  BaseResolver
	installer deps.Installer
	logger    *slog.Logger
	opts      Options
}

// New creates a build engine.
func New(store *image.Store, cache *image.Cache, resolver BaseResolver, installer deps.Installer, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		cache:     cache,
		resolver:  resolver,
		installer: installer,
		logger:    logger,
		opts:      opts,
	}
}

// buildState is threaded through the pipeline phases.
type buildState struct {
	bf         *config.Bakefile
	buildID    string
	contextDir string
	created    time.Time

	baseManifest ocispec.Manifest
	baseConfig   ocispec.Image

	manifest  *deps.Manifest
	depsLayer *image.Layer
	pins      map[string]string

	sourceLayer *image.Layer
	configLayer *image.Layer

	digest string
}

type phase struct {
	name string
	run  func(ctx context.Context, st *buildState) (Status, string, error)
}

// Build runs the pipeline for a bakefile rooted at contextDir.
// Phases execute strictly in order; the first failure aborts the build
// with no retry and no partial image. The returned result always
// carries the per-phase record, also on failure.
func (e *Engine) Build(ctx context.Context, bf *config.Bakefile, contextDir string) (*BuildResult, error) {
	result := &BuildResult{
		BuildID:   uuid.NewString(),
		StartTime: time.Now().UTC(),
	}

	st := &buildState{
		bf:         bf,
		buildID:    result.BuildID,
		contextDir: contextDir,
		created:    result.StartTime,
	}

	e.logger.Info("starting build",
		"build_id", result.BuildID,
		"ref", bf.Reference())

	pipeline := []phase{
		{name: "resolve-base", run: e.resolveBase},
		{name: "provision-deps", run: e.provisionDeps},
		{name: "scan-sources", run: e.scanSources},
		{name: "assemble", run: e.assemble},
		{name: "finalize", run: e.finalize},
	}

	var failure error
	for _, p := range pipeline {
		start := time.Now()
		status, detail, err := p.run(ctx, st)
		pr := PhaseResult{
			Name:     p.name,
			Status:   status,
			Detail:   detail,
			Duration: time.Since(start),
		}
		if err != nil {
			pr.Status = StatusFailed
			pr.Detail = err.Error()
			result.Phases = append(result.Phases, pr)
			failure = fmt.Errorf("phase %s: %w", p.name, err)
			break
		}
		result.Phases = append(result.Phases, pr)
		e.logger.Debug("phase complete", "phase", p.name, "status", status)
	}

	result.EndTime = time.Now().UTC()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if failure != nil {
		e.logger.Error("build failed", "build_id", result.BuildID, "error", failure)
		return result, failure
	}

	result.Ref = st.bf.Reference()
	result.Digest = st.digest
	result.Lockfile = filepath.Join(contextDir, deps.LockfileName)

	e.logger.Info("build complete",
		"build_id", result.BuildID,
		"ref", result.Ref,
		"digest", result.Digest,
		"duration", result.Duration.Round(time.Millisecond))

	return result, nil
}

// resolveBase pulls the base image into the local store and loads its
// manifest and config.
func (e *Engine) resolveBase(ctx context.Context, st *buildState) (Status, string, error) {
	ref, err := e.resolver.ResolveBase(ctx, st.bf.Base)
	if err != nil {
		return StatusFailed, "", err
	}

	manifest, _, err := e.store.FetchManifest(ctx, ref)
	if err != nil {
		return StatusFailed, "", err
	}

	cfg, err := e.store.FetchImageConfig(ctx, manifest)
	if err != nil {
		return StatusFailed, "", err
	}

	st.baseManifest = manifest
	st.baseConfig = cfg

	return StatusDone, ref, nil
}

// provisionDeps installs the dependency manifest into the dependency
// layer. It runs before any copy phase so the layer caches
// independently of source edits; a missing manifest fails the build
// here, before any source file is touched.
func (e *Engine) provisionDeps(ctx context.Context, st *buildState) (Status, string, error) {
	manifestPath := filepath.Join(st.contextDir, st.bf.Dependencies.Manifest)

	m, err := deps.ParseManifestFile(manifestPath)
	if err != nil {
		return StatusFailed, "", err
	}
	st.manifest = m

	key := e.cache.Key(
		[]byte(st.baseManifest.Config.Digest),
		m.Raw,
		[]byte(st.bf.Dependencies.Installer),
		[]byte(fmt.Sprintf("skip_upgrade=%t", st.bf.Dependencies.SkipUpgrade)),
	)

	if !e.opts.NoCache {
		if layer, entry, ok := e.cache.Get(key); ok {
			st.depsLayer = layer
			st.pins = entry.Pins
			if err := e.writeLockfile(st); err != nil {
				return StatusFailed, "", err
			}
			return StatusCached, fmt.Sprintf("layer %s", layer.Descriptor.Digest), nil
		}
	}

	stageDir := deps.StagePath(e.store.ScratchDir(), key[:12])
	defer os.RemoveAll(stageDir)

	provisioner := deps.NewProvisioner(e.installer, e.logger)
	provisioned, err := provisioner.Provision(ctx, m, stageDir, st.bf.Dependencies.SkipUpgrade)
	if err != nil {
		return StatusFailed, "", err
	}

	layer, err := image.BuildLayer(e.store.ScratchDir(), []image.Entry{
		{Source: provisioned.StageDir, Dest: image.SitePackagesDir},
	})
	if err != nil {
		return StatusFailed, "", err
	}

	st.depsLayer = layer
	st.pins = provisioned.Resolved

	if err := e.cache.Put(key, "deps", layer, provisioned.Resolved); err != nil {
		return StatusFailed, "", err
	}

	if err := e.writeLockfile(st); err != nil {
		return StatusFailed, "", err
	}

	return StatusDone, fmt.Sprintf("%d packages, layer %s", len(provisioned.Resolved), layer.Descriptor.Digest), nil
}

// writeLockfile pins the provisioned versions next to the bakefile.
func (e *Engine) writeLockfile(st *buildState) error {
	lock := deps.NewLockfile(st.depsLayer.Descriptor.Digest.String())
	for _, req := range st.manifest.Requirements {
		resolved := st.pins[req.Name]
		if resolved == "" {
			// Cache entries from before pin tracking carry no versions.
			continue
		}
		if err := lock.Pin(req.Name, deps.PackageLock{
			Requested: req.Raw,
			Resolved:  resolved,
		}); err != nil {
			return err
		}
	}
	return lock.Write(filepath.Join(st.contextDir, deps.LockfileName))
}

// scanSources runs the secret scan over the files about to be baked
// into layers. Disabled scans record a skipped phase.
func (e *Engine) scanSources(ctx context.Context, st *buildState) (Status, string, error) {
	if e.opts.Scanner == nil {
		return StatusSkipped, "scan disabled", nil
	}

	res, err := e.opts.Scanner.ScanPaths(ctx,
		filepath.Join(st.contextDir, st.bf.Source.Path),
		filepath.Join(st.contextDir, st.bf.Config.Path),
	)
	if err != nil {
		return StatusFailed, "", err
	}

	if len(res.Findings) == 0 {
		return StatusDone, fmt.Sprintf("%d files clean", res.FilesScanned), nil
	}

	if e.opts.ScanWarnOnly {
		for _, f := range res.Findings {
			e.logger.Warn("secret detected in build input",
				"rule", f.RuleID, "file", f.File, "line", f.StartLine)
		}
		return StatusDone, fmt.Sprintf("%d findings (warn only)", len(res.Findings)), nil
	}

	return StatusFailed, "", fmt.Errorf("refusing to bake %d secret finding(s) into image layers (first: %s in %s:%d)",
		len(res.Findings), res.Findings[0].RuleID, res.Findings[0].File, res.Findings[0].StartLine)
}

// assemble materializes the working directory, the source tree, and the
// configuration file as layers. The workdir is created exactly once, in
// the source layer; the config file lands at the workdir top level next
// to the source tree.
func (e *Engine) assemble(ctx context.Context, st *buildState) (Status, string, error) {
	srcPath := filepath.Join(st.contextDir, st.bf.Source.Path)
	info, err := os.Stat(srcPath)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("source directory %s: %w", st.bf.Source.Path, err)
	}
	if !info.IsDir() {
		return StatusFailed, "", fmt.Errorf("source path %s is not a directory", st.bf.Source.Path)
	}

	cfgPath := filepath.Join(st.contextDir, st.bf.Config.Path)
	info, err = os.Stat(cfgPath)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("configuration file %s: %w", st.bf.Config.Path, err)
	}
	if info.IsDir() {
		return StatusFailed, "", fmt.Errorf("configuration path %s is a directory, want a file", st.bf.Config.Path)
	}

	sourceLayer, err := image.BuildLayer(e.store.ScratchDir(), []image.Entry{
		{Dest: st.bf.Workdir},
		{Source: srcPath, Dest: st.bf.Workdir},
	})
	if err != nil {
		return StatusFailed, "", fmt.Errorf("failed to build source layer: %w", err)
	}
	st.sourceLayer = sourceLayer

	configLayer, err := image.BuildLayer(e.store.ScratchDir(), []image.Entry{
		{Source: cfgPath, Dest: st.bf.Workdir + "/" + filepath.Base(st.bf.Config.Path)},
	})
	if err != nil {
		return StatusFailed, "", fmt.Errorf("failed to build config layer: %w", err)
	}
	st.configLayer = configLayer

	return StatusDone, fmt.Sprintf("source %s, config %s", sourceLayer.Descriptor.Digest, configLayer.Descriptor.Digest), nil
}

// finalize ingests the layers, writes the image config and manifest,
// and tags the reference. The tag is the last operation: a build that
// fails earlier leaves no runnable image behind.
func (e *Engine) finalize(ctx context.Context, st *buildState) (Status, string, error) {
	layers := []*image.Layer{st.depsLayer, st.sourceLayer, st.configLayer}
	createdBy := []string{"kiln provision-deps", "kiln copy-source", "kiln copy-config"}

	cfg := image.DeriveConfig(st.baseConfig, st.bf.Workdir, st.bf.Entrypoint, st.bf.Env, st.bf.Labels, st.created)
	for i, layer := range layers {
		if err := e.store.PushLayer(ctx, layer); err != nil {
			return StatusFailed, "", err
		}
		image.AppendLayer(&cfg, layer, createdBy[i], st.created)
	}

	cfgDesc, err := e.store.PushJSON(ctx, ocispec.MediaTypeImageConfig, cfg)
	if err != nil {
		return StatusFailed, "", err
	}

	manifest := image.NewManifest(cfgDesc, st.baseManifest.Layers, layers, map[string]string{
		image.AnnotationBuildID:   st.buildID,
		ocispec.AnnotationCreated: st.created.Format(time.RFC3339),
	})

	manDesc, err := e.store.PushJSON(ctx, ocispec.MediaTypeImageManifest, manifest)
	if err != nil {
		return StatusFailed, "", err
	}

	if err := e.store.Tag(ctx, manDesc, st.bf.Reference()); err != nil {
		return StatusFailed, "", fmt.Errorf("failed to tag image %s: %w", st.bf.Reference(), err)
	}

	st.digest = manDesc.Digest.String()

	return StatusDone, st.digest, nil
}
