package image

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_Layout(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "store")
	store, err := OpenStore(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, root, store.Root())
	assert.Equal(t, root+"/scratch", store.ScratchDir())
	assert.DirExists(t, root)
	assert.FileExists(t, filepath.Join(root, "oci-layout"))
}
