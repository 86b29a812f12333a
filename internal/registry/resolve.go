package registry

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	orasregistry "oras.land/oras-go/v2/registry"
)

// ResolveTag lists the repository's tags and returns the highest one
// satisfying the semver constraint. Tags that do not parse as semver
// (e.g. "latest", "3.9-slim") are ignored; a constraint can only match
// plain version tags.
func (c *Client) ResolveTag(ctx context.Context, repoRef, constraint string) (string, error) {
	parsed, err := orasregistry.ParseReference(repoRef)
	if err != nil {
		return "", fmt.Errorf("invalid reference %s: %w", repoRef, err)
	}

	repo, err := c.repository(parsed)
	if err != nil {
		return "", err
	}

	var tags []string
	err = repo.Tags(ctx, "", func(page []string) error {
		tags = append(tags, page...)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list tags for %s: %w", repoRef, err)
	}

	return PickTag(tags, constraint)
}

// PickTag selects the highest semver tag satisfying the constraint.
func PickTag(tags []string, constraint string) (string, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return "", fmt.Errorf("invalid base constraint %q: %w", constraint, err)
	}

	var (
		best    *semver.Version
		bestTag string
	)
	for _, tag := range tags {
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue
		}
		if !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestTag = tag
		}
	}

	if best == nil {
		return "", fmt.Errorf("no tag satisfies constraint %q (checked %d tags)", constraint, len(tags))
	}

	return bestTag, nil
}
