package image

import (
	"sort"
	"time"

	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// AnnotationBuildID marks a manifest with the kiln build that produced it.
const AnnotationBuildID = "dev.reglet.kiln.build-id"

// SitePackagesDir is where the dependency layer lands inside the image.
// The image config points PYTHONPATH at it so installed packages are
// importable without touching the base interpreter's site-packages.
const SitePackagesDir = "/opt/kiln/site-packages"

// DeriveConfig builds the image config for a new image on top of a base
// config: base env and rootfs are inherited, then the build's own
// working directory, entrypoint, env, and layers are applied.
func DeriveConfig(base ocispec.Image, workdir string, entrypoint []string, env map[string]string, labels map[string]string, created time.Time) ocispec.Image {
	cfg := ocispec.Image{
		Platform: base.Platform,
		Created:  &created,
		Config: ocispec.ImageConfig{
			Env:        append([]string{}, base.Config.Env...),
			WorkingDir: workdir,
			Entrypoint: append([]string{}, entrypoint...),
			Labels:     map[string]string{},
		},
		RootFS: ocispec.RootFS{
			Type: "layers",
		},
	}
	cfg.RootFS.DiffIDs = append(cfg.RootFS.DiffIDs, base.RootFS.DiffIDs...)
	cfg.History = append(cfg.History, base.History...)

	for k, v := range base.Config.Labels {
		cfg.Config.Labels[k] = v
	}
	for _, k := range sortedKeys(labels) {
		cfg.Config.Labels[k] = labels[k]
	}

	cfg.Config.Env = append(cfg.Config.Env, "PYTHONPATH="+SitePackagesDir)
	for _, k := range sortedKeys(env) {
		cfg.Config.Env = append(cfg.Config.Env, k+"="+env[k])
	}

	return cfg
}

// AppendLayer records a new layer in the config's rootfs and history.
func AppendLayer(cfg *ocispec.Image, layer *Layer, createdBy string, created time.Time) {
	cfg.RootFS.DiffIDs = append(cfg.RootFS.DiffIDs, layer.DiffID)
	cfg.History = append(cfg.History, ocispec.History{
		Created:   &created,
		CreatedBy: createdBy,
	})
}

// NewManifest assembles the image manifest: base layers first, then the
// build's layers in pipeline order.
func NewManifest(configDesc ocispec.Descriptor, baseLayers []ocispec.Descriptor, layers []*Layer, annotations map[string]string) ocispec.Manifest {
	m := ocispec.Manifest{
		Versioned:   specs.Versioned{SchemaVersion: 2},
		MediaType:   ocispec.MediaTypeImageManifest,
		Config:      configDesc,
		Annotations: annotations,
	}

	m.Layers = append(m.Layers, baseLayers...)
	for _, layer := range layers {
		m.Layers = append(m.Layers, layer.Descriptor)
	}

	return m
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
