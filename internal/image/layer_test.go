package image

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func tarNames(t *testing.T, layer *Layer) []string {
	t.Helper()

	f, err := os.Open(layer.Path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}

func TestBuildLayer_Deterministic(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"main.py":          "print('hello')\n",
		"util/helpers.py":  "def helper(): pass\n",
		"util/__init__.py": "",
	}
	src1 := writeTree(t, files)
	src2 := writeTree(t, files)

	layer1, err := BuildLayer(t.TempDir(), []Entry{{Dest: "/app"}, {Source: src1, Dest: "/app"}})
	require.NoError(t, err)
	layer2, err := BuildLayer(t.TempDir(), []Entry{{Dest: "/app"}, {Source: src2, Dest: "/app"}})
	require.NoError(t, err)

	assert.Equal(t, layer1.Descriptor.Digest, layer2.Descriptor.Digest)
	assert.Equal(t, layer1.DiffID, layer2.DiffID)
	assert.Equal(t, layer1.Descriptor.Size, layer2.Descriptor.Size)

	// The descriptor digest covers the compressed stream, the diffID the
	// uncompressed one. They must never coincide.
	assert.NotEqual(t, layer1.Descriptor.Digest, layer1.DiffID)
}

func TestBuildLayer_ContentSensitive(t *testing.T) {
	t.Parallel()

	src1 := writeTree(t, map[string]string{"main.py": "print('a')\n"})
	src2 := writeTree(t, map[string]string{"main.py": "print('b')\n"})

	layer1, err := BuildLayer(t.TempDir(), []Entry{{Source: src1, Dest: "/app"}})
	require.NoError(t, err)
	layer2, err := BuildLayer(t.TempDir(), []Entry{{Source: src2, Dest: "/app"}})
	require.NoError(t, err)

	assert.NotEqual(t, layer1.Descriptor.Digest, layer2.Descriptor.Digest)
	assert.NotEqual(t, layer1.DiffID, layer2.DiffID)
}

func TestBuildLayer_EntryOrderAndParents(t *testing.T) {
	t.Parallel()

	src := writeTree(t, map[string]string{
		"main.py":         "print('hello')\n",
		"util/helpers.py": "def helper(): pass\n",
	})
	cfg := filepath.Join(writeTree(t, map[string]string{"config.yml": "interval: 60\n"}), "config.yml")

	layer, err := BuildLayer(t.TempDir(), []Entry{
		{Dest: "/app"},
		{Source: src, Dest: "/app"},
		{Source: cfg, Dest: "/app/config.yml"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"app/",
		"app/main.py",
		"app/util/",
		"app/util/helpers.py",
		"app/config.yml",
	}, tarNames(t, layer))
}

func TestBuildLayer_SingleFileEntry(t *testing.T) {
	t.Parallel()

	cfg := filepath.Join(writeTree(t, map[string]string{"config.yml": "interval: 60\n"}), "config.yml")

	layer, err := BuildLayer(t.TempDir(), []Entry{{Source: cfg, Dest: "/app/config.yml"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"app/", "app/config.yml"}, tarNames(t, layer))
}

func TestBuildLayer_NoEntries(t *testing.T) {
	t.Parallel()

	_, err := BuildLayer(t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one entry")
}

func TestBuildLayer_MissingSource(t *testing.T) {
	t.Parallel()

	_, err := BuildLayer(t.TempDir(), []Entry{{Source: filepath.Join(t.TempDir(), "gone"), Dest: "/app"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy source")
}

func TestBuildLayer_DuplicateEntry(t *testing.T) {
	t.Parallel()

	cfg := filepath.Join(writeTree(t, map[string]string{"config.yml": "a: 1\n"}), "config.yml")

	_, err := BuildLayer(t.TempDir(), []Entry{
		{Source: cfg, Dest: "/app/config.yml"},
		{Source: cfg, Dest: "/app/config.yml"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate layer entry")
}
