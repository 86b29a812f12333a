package deps

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockfile_PinAndValidate(t *testing.T) {
	t.Parallel()

	l := NewLockfile("sha256:abc123")
	require.NoError(t, l.Pin("requests", PackageLock{Requested: "==2.31.0", Resolved: "2.31.0"}))
	require.NoError(t, l.Pin("lxml", PackageLock{Resolved: "5.1.0"}))

	assert.NoError(t, l.Validate())
	assert.Equal(t, "2.31.0", l.Packages["requests"].Resolved)
}

func TestLockfile_PinRequiresResolved(t *testing.T) {
	t.Parallel()

	l := NewLockfile("sha256:abc123")
	err := l.Pin("requests", PackageLock{Requested: "==2.31.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolved version is required")
}

func TestLockfile_ValidateInvariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Lockfile)
		wantErr string
	}{
		{
			name:    "wrong version",
			mutate:  func(l *Lockfile) { l.Version = 2 },
			wantErr: "unsupported lockfile version",
		},
		{
			name:    "missing layer digest",
			mutate:  func(l *Lockfile) { l.Layer = "" },
			wantErr: "layer digest is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := NewLockfile("sha256:abc123")
			require.NoError(t, l.Pin("requests", PackageLock{Resolved: "2.31.0"}))
			tt.mutate(l)

			err := l.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLockfile_WriteReadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LockfileName)

	l := NewLockfile("sha256:def456")
	require.NoError(t, l.Pin("requests", PackageLock{Requested: "==2.31.0", Resolved: "2.31.0"}))
	require.NoError(t, l.Write(path))

	got, err := ReadLockfile(path)
	require.NoError(t, err)

	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "sha256:def456", got.Layer)
	assert.Equal(t, l.Packages, got.Packages)
}

func TestLockfile_WriteRejectsInvalid(t *testing.T) {
	t.Parallel()

	l := NewLockfile("")
	require.NoError(t, l.Pin("requests", PackageLock{Resolved: "2.31.0"}))

	err := l.Write(filepath.Join(t.TempDir(), LockfileName))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to write invalid lockfile")
}

func TestReadLockfile_Missing(t *testing.T) {
	t.Parallel()

	_, err := ReadLockfile(filepath.Join(t.TempDir(), LockfileName))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read lockfile")
}
