package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/errdef"
)

// Store is the local content-addressed image store, an OCI image layout
// on disk. Built images are tagged here; push and pull copy between the
// store and remote registries.
type Store struct {
	*oci.Store
	root string
}

// OpenStore opens (or initializes) the OCI layout at root.
func OpenStore(ctx context.Context, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	inner, err := oci.NewWithContext(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store at %s: %w", root, err)
	}

	return &Store{Store: inner, root: root}, nil
}

// Root returns the store's filesystem root.
func (s *Store) Root() string {
	return s.root
}

// ScratchDir returns a directory under the store root for transient
// build files (staged installs, layer blobs before ingestion).
func (s *Store) ScratchDir() string {
	return s.root + "/scratch"
}

// PushLayer ingests a built layer blob. Pushing a blob that already
// exists is not an error; content addressing makes it a no-op.
func (s *Store) PushLayer(ctx context.Context, layer *Layer) error {
	f, err := os.Open(layer.Path)
	if err != nil {
		return fmt.Errorf("failed to open layer blob: %w", err)
	}
	defer f.Close()

	if err := s.Push(ctx, layer.Descriptor, f); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return fmt.Errorf("failed to push layer %s: %w", layer.Descriptor.Digest, err)
	}

	return nil
}

// PushJSON marshals v and ingests it as a blob of the given media type.
func (s *Store) PushJSON(ctx context.Context, mediaType string, v interface{}) (ocispec.Descriptor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to encode %s: %w", mediaType, err)
	}

	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(data),
		Size:      int64(len(data)),
	}

	if err := s.Push(ctx, desc, bytes.NewReader(data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return ocispec.Descriptor{}, fmt.Errorf("failed to push %s: %w", mediaType, err)
	}

	return desc, nil
}

// FetchManifest resolves a reference and fetches its image manifest.
func (s *Store) FetchManifest(ctx context.Context, ref string) (ocispec.Manifest, ocispec.Descriptor, error) {
	desc, err := s.Resolve(ctx, ref)
	if err != nil {
		return ocispec.Manifest{}, ocispec.Descriptor{}, fmt.Errorf("image %s not found in store: %w", ref, err)
	}

	data, err := content.FetchAll(ctx, s, desc)
	if err != nil {
		return ocispec.Manifest{}, ocispec.Descriptor{}, fmt.Errorf("failed to fetch manifest %s: %w", desc.Digest, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ocispec.Manifest{}, ocispec.Descriptor{}, fmt.Errorf("failed to decode manifest %s: %w", desc.Digest, err)
	}

	return manifest, desc, nil
}

// FetchImageConfig fetches and decodes the image config a manifest
// points at.
func (s *Store) FetchImageConfig(ctx context.Context, manifest ocispec.Manifest) (ocispec.Image, error) {
	data, err := content.FetchAll(ctx, s, manifest.Config)
	if err != nil {
		return ocispec.Image{}, fmt.Errorf("failed to fetch image config %s: %w", manifest.Config.Digest, err)
	}

	var cfg ocispec.Image
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ocispec.Image{}, fmt.Errorf("failed to decode image config %s: %w", manifest.Config.Digest, err)
	}

	return cfg, nil
}
