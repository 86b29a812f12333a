package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Parallel()

	input := []byte(`# scraper dependencies
requests==2.31.0
beautifulsoup4>=4.12
PyYAML~=6.0
lxml  # parser backend

scrapy
`)

	m, err := ParseManifest(input)
	require.NoError(t, err)
	require.Len(t, m.Requirements, 5)

	assert.Equal(t, Requirement{Name: "requests", Operator: "==", Version: "2.31.0", Raw: "requests==2.31.0"}, m.Requirements[0])
	assert.Equal(t, "beautifulsoup4", m.Requirements[1].Name)
	assert.Equal(t, ">=", m.Requirements[1].Operator)
	assert.Equal(t, "pyyaml", m.Requirements[2].Name)
	assert.Equal(t, "~=", m.Requirements[2].Operator)
	assert.Equal(t, "lxml", m.Requirements[3].Name)
	assert.Equal(t, "", m.Requirements[3].Operator)
	assert.Equal(t, "scrapy", m.Requirements[4].Name)
	assert.Equal(t, input, m.Raw)
}

func TestParseManifest_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "empty file",
			input:   "",
			wantErr: "no requirements",
		},
		{
			name:    "comments only",
			input:   "# nothing here\n\n",
			wantErr: "no requirements",
		},
		{
			name:    "operator without version",
			input:   "requests==\n",
			wantErr: "operator but no version",
		},
		{
			name:    "version without name",
			input:   "==2.31.0\n",
			wantErr: "no package name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseManifest([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseManifestFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := ParseManifestFile(filepath.Join(t.TempDir(), "requirements.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManifestMissing))
}

func TestParseManifestFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte("requests==2.31.0\n"), 0o644))

	m, err := ParseManifestFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	require.Len(t, m.Requirements, 1)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "beautifulsoup4", NormalizeName("BeautifulSoup4"))
	assert.Equal(t, "ruamel-yaml", NormalizeName("ruamel.yaml"))
	assert.Equal(t, "typing-extensions", NormalizeName("typing_extensions"))
	assert.Equal(t, "requests", NormalizeName("  requests "))
}

func TestRequirement_Satisfied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      Requirement
		resolved string
		want     bool
		wantErr  bool
	}{
		{
			name:     "exact match",
			req:      Requirement{Name: "requests", Operator: "==", Version: "2.31.0"},
			resolved: "2.31.0",
			want:     true,
		},
		{
			name:     "exact mismatch",
			req:      Requirement{Name: "requests", Operator: "==", Version: "2.31.0"},
			resolved: "2.32.0",
			want:     false,
		},
		{
			name:     "minimum satisfied",
			req:      Requirement{Name: "lxml", Operator: ">=", Version: "4.12"},
			resolved: "5.1.0",
			want:     true,
		},
		{
			name:     "minimum violated",
			req:      Requirement{Name: "lxml", Operator: ">=", Version: "4.12"},
			resolved: "4.11.2",
			want:     false,
		},
		{
			name:     "compatible release within range",
			req:      Requirement{Name: "pyyaml", Operator: "~=", Version: "6.0"},
			resolved: "6.0.2",
			want:     true,
		},
		{
			name:     "compatible release outside range",
			req:      Requirement{Name: "pyyaml", Operator: "~=", Version: "6.0"},
			resolved: "7.0.0",
			want:     false,
		},
		{
			name:     "unconstrained accepts anything",
			req:      Requirement{Name: "scrapy"},
			resolved: "2.11.1.post1",
			want:     true,
		},
		{
			name:     "non-semver resolved with constraint",
			req:      Requirement{Name: "scrapy", Operator: "==", Version: "2.11"},
			resolved: "not-a-version",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.req.Satisfied(tt.resolved)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
