package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBakefile = `
version: 1
image:
  name: housing-scraper
  tag: "1.4.0"
base:
  ref: ghcr.io/library/python
  tag: 3.12-slim
dependencies:
  manifest: requirements.txt
workdir: /app
source:
  path: src
config:
  path: config.yml
entrypoint: ["python", "main.py"]
env:
  LOG_LEVEL: info
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	bf, err := LoadFromReader(strings.NewReader(validBakefile))
	require.NoError(t, err)

	assert.Equal(t, 1, bf.Version)
	assert.Equal(t, "housing-scraper", bf.Image.Name)
	assert.Equal(t, "housing-scraper:1.4.0", bf.Reference())
	assert.Equal(t, "ghcr.io/library/python:3.12-slim", bf.Base.Reference())
	assert.Equal(t, "requirements.txt", bf.Dependencies.Manifest)
	assert.Equal(t, "/app", bf.Workdir)
	assert.Equal(t, []string{"python", "main.py"}, bf.Entrypoint)
	assert.Equal(t, "info", bf.Env["LOG_LEVEL"])
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	minimal := `
image:
  name: scraper
base:
  ref: ghcr.io/library/python
  tag: 3.12-slim
dependencies:
  manifest: requirements.txt
source:
  path: src
config:
  path: config.yml
entrypoint: ["python", "main.py"]
`

	bf, err := LoadFromReader(strings.NewReader(minimal))
	require.NoError(t, err)

	assert.Equal(t, 1, bf.Version)
	assert.Equal(t, DefaultWorkdir, bf.Workdir)
	assert.Equal(t, DefaultInstaller, bf.Dependencies.Installer)
	assert.Equal(t, DefaultImageTag, bf.Image.Tag)
	assert.Equal(t, "scraper:latest", bf.Reference())
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	input := strings.Replace(validBakefile, "workdir: /app", "workdir: /app\nvolumes: [data]", 1)

	_, err := LoadFromReader(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse bakefile YAML")
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("image: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse bakefile YAML")
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bakefile.yml")
	require.NoError(t, os.WriteFile(path, []byte(validBakefile), 0o644))

	bf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "housing-scraper", bf.Image.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open bakefile")
}
