// Package registry moves images between remote OCI registries and the
// local store: base image pulls with semver tag resolution, and pushes
// of built images.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	oras "oras.land/oras-go/v2"
	orasregistry "oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"golang.org/x/sync/errgroup"

	"github.com/reglet-dev/kiln/internal/config"
	"github.com/reglet-dev/kiln/internal/image"
	"github.com/reglet-dev/kiln/internal/version"
)

// Client copies images between the local store and remote registries.
type Client struct {
	store       *image.Store
	plainHTTP   bool
	concurrency int
	logger      *slog.Logger
}

// NewClient creates a registry client backed by the local store.
func NewClient(store *image.Store, cfg config.RegistryConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:       store,
		plainHTTP:   cfg.PlainHTTP,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// repository opens a remote repository for a reference.
func (c *Client) repository(ref orasregistry.Reference) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %s: %w", ref.Repository, err)
	}

	authClient := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
	}
	authClient.SetUserAgent(version.Get().UserAgent())

	repo.PlainHTTP = c.plainHTTP
	repo.Client = authClient

	return repo, nil
}

// Pull copies a remote image into the local store under the same
// reference. Blob transfers run concurrently up to the configured
// limit; the copy itself is atomic from the store's perspective.
func (c *Client) Pull(ctx context.Context, ref string) error {
	parsed, err := orasregistry.ParseReference(ref)
	if err != nil {
		return fmt.Errorf("invalid reference %s: %w", ref, err)
	}

	repo, err := c.repository(parsed)
	if err != nil {
		return err
	}

	opts := oras.DefaultCopyOptions
	opts.Concurrency = c.concurrency

	c.logger.Info("pulling image", "ref", ref)
	if _, err := oras.Copy(ctx, repo, parsed.Reference, c.store, ref, opts); err != nil {
		return fmt.Errorf("failed to pull %s: %w", ref, err)
	}

	return nil
}

// Push copies a local image to its remote repository.
func (c *Client) Push(ctx context.Context, ref string) error {
	parsed, err := orasregistry.ParseReference(ref)
	if err != nil {
		return fmt.Errorf("invalid reference %s: %w", ref, err)
	}

	repo, err := c.repository(parsed)
	if err != nil {
		return err
	}

	opts := oras.DefaultCopyOptions
	opts.Concurrency = c.concurrency

	c.logger.Info("pushing image", "ref", ref)
	if _, err := oras.Copy(ctx, c.store, ref, repo, parsed.Reference, opts); err != nil {
		return fmt.Errorf("failed to push %s: %w", ref, err)
	}

	return nil
}

// PushAll pushes several references, at most concurrency at a time.
// The build pipeline is sequential by contract; distribution is not.
func (c *Client) PushAll(ctx context.Context, refs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, ref := range refs {
		g.Go(func() error {
			return c.Push(ctx, ref)
		})
	}

	return g.Wait()
}

// ResolveBase implements engine.BaseResolver: it resolves a constraint
// to an exact tag when needed, then makes sure the base image is
// present in the local store.
func (c *Client) ResolveBase(ctx context.Context, base config.BaseSection) (string, error) {
	tag := base.Tag
	if base.Constraint != "" {
		resolved, err := c.ResolveTag(ctx, base.Ref, base.Constraint)
		if err != nil {
			return "", err
		}
		c.logger.Info("resolved base constraint",
			"ref", base.Ref, "constraint", base.Constraint, "tag", resolved)
		tag = resolved
	}

	ref := base.Ref + ":" + tag

	// Pulled bases are content-addressed; a ref already in the store
	// needs no network round trip.
	if _, err := c.store.Resolve(ctx, ref); err == nil {
		return ref, nil
	}

	if err := c.Pull(ctx, ref); err != nil {
		return "", err
	}

	return ref, nil
}
