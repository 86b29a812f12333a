package image

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Cache stores built layers keyed by a digest of their inputs, so that
// a rebuild whose inputs are unchanged reuses the layer without
// re-running the step that produced it. The dependency layer is the
// main tenant: source-only edits must not re-trigger installation.
type Cache struct {
	root string
}

// CacheEntry is the metadata kept next to each cached layer blob.
type CacheEntry struct {
	Key       string    `yaml:"key"`
	Kind      string    `yaml:"kind"`
	Digest    string    `yaml:"digest"`
	DiffID    string    `yaml:"diff_id"`
	Size      int64     `yaml:"size"`
	CreatedAt time.Time `yaml:"created_at"`
	// Pins carries resolved package versions for dependency layers, so
	// a cache hit can still regenerate an accurate lockfile.
	Pins map[string]string `yaml:"pins,omitempty"`
}

// AgeDays returns the entry age in whole days, for prune filters.
func (e CacheEntry) AgeDays() int {
	return int(time.Since(e.CreatedAt).Hours() / 24)
}

// NewCache opens the layer cache rooted at root.
func NewCache(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{root: root}, nil
}

// Key derives a cache key from the ordered input parts. Parts are
// length-framed before hashing so boundary shifts cannot collide.
func (c *Cache) Key(parts ...[]byte) string {
	h := sha256.New()
	var frame [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(frame[:], uint64(len(part)))
		h.Write(frame[:])
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached layer for key, if present.
func (c *Cache) Get(key string) (*Layer, *CacheEntry, bool) {
	dir := filepath.Join(c.root, key)

	data, err := os.ReadFile(filepath.Join(dir, "entry.yaml"))
	if err != nil {
		return nil, nil, false
	}

	var entry CacheEntry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, nil, false
	}

	blobPath := filepath.Join(dir, "layer.tar.gz")
	if _, err := os.Stat(blobPath); err != nil {
		return nil, nil, false
	}

	layer := &Layer{
		Descriptor: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayerGzip,
			Digest:    digest.Digest(entry.Digest),
			Size:      entry.Size,
		},
		DiffID: digest.Digest(entry.DiffID),
		Path:   blobPath,
	}

	return layer, &entry, true
}

// Put copies a built layer into the cache under key.
func (c *Cache) Put(key, kind string, layer *Layer, pins map[string]string) error {
	dir := filepath.Join(c.root, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}

	if err := copyFile(layer.Path, filepath.Join(dir, "layer.tar.gz")); err != nil {
		return fmt.Errorf("failed to cache layer blob: %w", err)
	}

	entry := CacheEntry{
		Key:       key,
		Kind:      kind,
		Digest:    layer.Descriptor.Digest.String(),
		DiffID:    layer.DiffID.String(),
		Size:      layer.Descriptor.Size,
		CreatedAt: time.Now().UTC(),
		Pins:      pins,
	}

	data, err := yaml.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "entry.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Entries lists all cache entries, newest first.
func (c *Cache) Entries() ([]CacheEntry, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var entries []CacheEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.root, d.Name(), "entry.yaml"))
		if err != nil {
			continue
		}
		var entry CacheEntry
		if err := yaml.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// Remove deletes a cache entry. Removing a missing entry is a no-op.
func (c *Cache) Remove(key string) error {
	if err := os.RemoveAll(filepath.Join(c.root, key)); err != nil {
		return fmt.Errorf("failed to remove cache entry %s: %w", key, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
