package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/kiln/internal/engine"
)

func sampleResult() *engine.BuildResult {
	return &engine.BuildResult{
		BuildID:   "2f4c9a1e-0000-4000-8000-3c5a7b9d1e2f",
		Ref:       "housing-scraper:latest",
		Digest:    "sha256:abcdef",
		Lockfile:  "/work/kiln.lock",
		StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Phases: []engine.PhaseResult{
			{Name: "resolve-base", Status: engine.StatusDone, Detail: "python:3.12-slim"},
			{Name: "provision-deps", Status: engine.StatusCached, Detail: "layer sha256:aaa"},
			{Name: "scan-sources", Status: engine.StatusSkipped, Detail: "scan disabled"},
			{Name: "assemble", Status: engine.StatusDone},
			{Name: "finalize", Status: engine.StatusDone, Detail: "sha256:abcdef"},
		},
	}
}

func TestNewFormatter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	for _, format := range SupportedFormats() {
		f, err := NewFormatter(format, &buf)
		require.NoError(t, err, format)
		require.NotNil(t, f, format)
	}

	_, err := NewFormatter("xml", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestTableFormatter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(&buf).Format(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Image: housing-scraper:latest")
	assert.Contains(t, out, "Digest: sha256:abcdef")
	assert.Contains(t, out, "resolve-base")
	assert.Contains(t, out, "CACHED")
	assert.Contains(t, out, "SKIPPED")
	assert.Contains(t, out, "Result: OK")
	assert.Contains(t, out, "Lockfile: /work/kiln.lock")
}

func TestTableFormatter_Failure(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.Phases = []engine.PhaseResult{
		{Name: "resolve-base", Status: engine.StatusDone},
		{Name: "provision-deps", Status: engine.StatusFailed, Detail: "dependency manifest missing"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(&buf).Format(result))

	out := buf.String()
	assert.Contains(t, out, "Result: FAILED")
	assert.Contains(t, out, "dependency manifest missing")
	assert.NotContains(t, out, "Lockfile:")
}

func TestJSONFormatter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(&buf).Format(sampleResult()))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var decoded engine.BuildResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "housing-scraper:latest", decoded.Ref)
	require.Len(t, decoded.Phases, 5)
	assert.Equal(t, engine.StatusCached, decoded.Phases[1].Status)
}

func TestYAMLFormatter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewYAMLFormatter(&buf).Format(sampleResult()))

	var decoded engine.BuildResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "housing-scraper:latest", decoded.Ref)
	require.Len(t, decoded.Phases, 5)
	assert.Equal(t, "resolve-base", decoded.Phases[0].Name)
}
