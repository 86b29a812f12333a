// Package image builds and stores OCI image artifacts: deterministic
// layer blobs, image configs and manifests, a local OCI layout store,
// and the dependency layer cache.
package image

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Entry maps a build-context path to a destination inside the image.
type Entry struct {
	// Source is a file or directory in the build context. Empty Source
	// emits just the destination directory, used to create the workdir.
	Source string
	// Dest is the absolute destination path inside the image. For a
	// directory Source, the directory's contents land under Dest.
	Dest string
}

// Layer is a built layer blob on disk plus its two identities: the
// descriptor digest covers the compressed stream, the diffID covers the
// uncompressed tar stream.
type Layer struct {
	Descriptor ocispec.Descriptor
	DiffID     digest.Digest
	Path       string
}

// epoch is the fixed timestamp written into every tar header so that
// identical inputs produce identical layer digests.
var epoch = time.Unix(0, 0).UTC()

// BuildLayer packs entries into a gzip-compressed tar blob under
// blobDir. Tar entries are emitted in lexical path order with zero
// timestamps and root ownership, so the layer digest is a pure function
// of the input file trees.
func BuildLayer(blobDir string, entries []Entry) (*Layer, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("layer needs at least one entry")
	}

	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	blob, err := os.CreateTemp(blobDir, "layer-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("failed to create layer blob: %w", err)
	}
	defer blob.Close()

	compressed := digest.Canonical.Digester()
	gz := gzip.NewWriter(io.MultiWriter(blob, compressed.Hash()))

	uncompressed := digest.Canonical.Digester()
	tw := tar.NewWriter(io.MultiWriter(gz, uncompressed.Hash()))

	seen := make(map[string]bool)
	for _, entry := range entries {
		if err := writeEntry(tw, entry, seen); err != nil {
			tw.Close()
			gz.Close()
			os.Remove(blob.Name())
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		os.Remove(blob.Name())
		return nil, fmt.Errorf("failed to finalize layer tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(blob.Name())
		return nil, fmt.Errorf("failed to finalize layer gzip: %w", err)
	}

	info, err := blob.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat layer blob: %w", err)
	}

	return &Layer{
		Descriptor: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayerGzip,
			Digest:    compressed.Digest(),
			Size:      info.Size(),
		},
		DiffID: uncompressed.Digest(),
		Path:   blob.Name(),
	}, nil
}

// writeEntry emits one Entry into the tar stream, including any parent
// directories not yet seen.
func writeEntry(tw *tar.Writer, entry Entry, seen map[string]bool) error {
	dest := tarPath(entry.Dest)

	if entry.Source == "" {
		return writeDirHeaders(tw, dest, seen)
	}

	info, err := os.Lstat(entry.Source)
	if err != nil {
		return fmt.Errorf("copy source %s: %w", entry.Source, err)
	}

	if !info.IsDir() {
		if err := writeDirHeaders(tw, parentPath(dest), seen); err != nil {
			return err
		}
		return writeFileHeader(tw, entry.Source, dest, info, seen)
	}

	if err := writeDirHeaders(tw, dest, seen); err != nil {
		return err
	}

	// WalkDir visits entries in lexical order, which keeps the stream
	// deterministic without an explicit sort.
	return filepath.WalkDir(entry.Source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("copy source %s: %w", p, err)
		}
		if p == entry.Source {
			return nil
		}

		rel, err := filepath.Rel(entry.Source, p)
		if err != nil {
			return err
		}
		name := dest + "/" + filepath.ToSlash(rel)

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("copy source %s: %w", p, err)
		}

		if d.IsDir() {
			return writeDirHeaders(tw, name, seen)
		}
		return writeFileHeader(tw, p, name, fi, seen)
	})
}

// writeDirHeaders emits directory headers for every path segment of
// dir that has not been written yet. Each directory is created exactly
// once per layer.
func writeDirHeaders(tw *tar.Writer, dir string, seen map[string]bool) error {
	if dir == "" || dir == "." {
		return nil
	}

	var missing []string
	for p := dir; p != "" && p != "."; p = parentPath(p) {
		if seen[p] {
			break
		}
		missing = append(missing, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(missing)))

	for _, p := range missing {
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     p + "/",
			Mode:     0o755,
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write directory header %s: %w", p, err)
		}
		seen[p] = true
	}

	return nil
}

func writeFileHeader(tw *tar.Writer, source, name string, info fs.FileInfo, seen map[string]bool) error {
	if seen[name] {
		return fmt.Errorf("duplicate layer entry %s", name)
	}
	seen[name] = true

	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(source)
		if err != nil {
			return fmt.Errorf("copy source %s: %w", source, err)
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     name,
			Linkname: target,
			Mode:     0o777,
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		}
		return tw.WriteHeader(hdr)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy source %s: unsupported file type %s", source, info.Mode())
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     int64(info.Mode().Perm()),
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write file header %s: %w", name, err)
	}

	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("copy source %s: %w", source, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy source %s: %w", source, err)
	}

	return nil
}

// tarPath converts an absolute image path to OCI tar form (no leading
// slash, forward slashes).
func tarPath(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(p), "/")
}

func parentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}
