package image

import (
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConfig(t *testing.T) {
	t.Parallel()

	base := ocispec.Image{
		Platform: ocispec.Platform{OS: "linux", Architecture: "amd64"},
		Config: ocispec.ImageConfig{
			Env:    []string{"PATH=/usr/local/bin:/usr/bin", "PYTHONUNBUFFERED=1"},
			Labels: map[string]string{"org.opencontainers.image.base.name": "python"},
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{"sha256:aaa", "sha256:bbb"},
		},
		History: []ocispec.History{{CreatedBy: "ADD rootfs"}},
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := DeriveConfig(base, "/app",
		[]string{"python", "main.py"},
		map[string]string{"LOG_LEVEL": "info", "CITY": "amsterdam"},
		map[string]string{"team": "scrapers"},
		created)

	assert.Equal(t, "/app", cfg.Config.WorkingDir)
	assert.Equal(t, []string{"python", "main.py"}, cfg.Config.Entrypoint)
	assert.Equal(t, base.RootFS.DiffIDs, cfg.RootFS.DiffIDs)
	assert.Len(t, cfg.History, 1)

	// Base env is inherited, then PYTHONPATH, then bakefile env in
	// sorted key order so the config digest is stable.
	assert.Equal(t, []string{
		"PATH=/usr/local/bin:/usr/bin",
		"PYTHONUNBUFFERED=1",
		"PYTHONPATH=" + SitePackagesDir,
		"CITY=amsterdam",
		"LOG_LEVEL=info",
	}, cfg.Config.Env)

	assert.Equal(t, "python", cfg.Config.Labels["org.opencontainers.image.base.name"])
	assert.Equal(t, "scrapers", cfg.Config.Labels["team"])
}

func TestDeriveConfig_DoesNotAliasBase(t *testing.T) {
	t.Parallel()

	base := ocispec.Image{
		Config: ocispec.ImageConfig{Env: []string{"PATH=/bin"}},
		RootFS: ocispec.RootFS{Type: "layers", DiffIDs: []digest.Digest{"sha256:aaa"}},
	}

	cfg := DeriveConfig(base, "/app", []string{"python"}, nil, nil, time.Now())
	cfg.Config.Env[0] = "PATH=/mutated"
	cfg.RootFS.DiffIDs[0] = "sha256:mutated"

	assert.Equal(t, "PATH=/bin", base.Config.Env[0])
	assert.Equal(t, digest.Digest("sha256:aaa"), base.RootFS.DiffIDs[0])
}

func TestAppendLayer(t *testing.T) {
	t.Parallel()

	cfg := ocispec.Image{RootFS: ocispec.RootFS{Type: "layers"}}
	layer := &Layer{DiffID: "sha256:ccc"}

	AppendLayer(&cfg, layer, "kiln provision-deps", time.Now())

	require.Len(t, cfg.RootFS.DiffIDs, 1)
	assert.Equal(t, digest.Digest("sha256:ccc"), cfg.RootFS.DiffIDs[0])
	require.Len(t, cfg.History, 1)
	assert.Equal(t, "kiln provision-deps", cfg.History[0].CreatedBy)
}

func TestNewManifest_LayerOrder(t *testing.T) {
	t.Parallel()

	configDesc := ocispec.Descriptor{MediaType: ocispec.MediaTypeImageConfig, Digest: "sha256:cfg"}
	baseLayers := []ocispec.Descriptor{{Digest: "sha256:base1"}, {Digest: "sha256:base2"}}
	newLayers := []*Layer{
		{Descriptor: ocispec.Descriptor{Digest: "sha256:deps"}},
		{Descriptor: ocispec.Descriptor{Digest: "sha256:src"}},
	}

	m := NewManifest(configDesc, baseLayers, newLayers, map[string]string{AnnotationBuildID: "b-1"})

	assert.Equal(t, 2, m.SchemaVersion)
	assert.Equal(t, configDesc, m.Config)
	assert.Equal(t, "b-1", m.Annotations[AnnotationBuildID])

	var digests []string
	for _, l := range m.Layers {
		digests = append(digests, l.Digest.String())
	}
	assert.Equal(t, []string{"sha256:base1", "sha256:base2", "sha256:deps", "sha256:src"}, digests)
}
