package deploy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// imageRef is the {registry, repo, imageTag} triple charts use to
// reference an image.
type imageRef struct {
	Registry string
	Repo     string
	Tag      string
}

func (r imageRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repo, r.Tag)
}

// MirrorImages reads the chart values, pulls every referenced image,
// retags it onto newRegistry and pushes it there. Air-gapped clusters
// can then resolve the chart's images from the internal registry.
func (d *Driver) MirrorImages(ctx context.Context, valuesFile, newRegistry string) error {
	if newRegistry == "" {
		return fmt.Errorf("no target registry configured for image mirroring")
	}

	data, err := os.ReadFile(valuesFile)
	if err != nil {
		return fmt.Errorf("failed to read values file: %w", err)
	}

	var values interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse values file %s: %w", valuesFile, err)
	}
	if values == nil {
		return fmt.Errorf("values file %s is empty", valuesFile)
	}

	refs := collectImageRefs(values)
	if len(refs) == 0 {
		d.logger.Debug().Str("values", valuesFile).Msg("No image references found in values")
		return nil
	}

	for _, ref := range refs {
		target := imageRef{Registry: newRegistry, Repo: ref.Repo, Tag: ref.Tag}
		fmt.Printf("Mirroring image %s to %s\n", ref, target)

		if _, err := d.runner.Run(ctx, "docker", "pull", ref.String()); err != nil {
			return fmt.Errorf("failed to pull %s: %w", ref, err)
		}
		if _, err := d.runner.Run(ctx, "docker", "tag", ref.String(), target.String()); err != nil {
			return fmt.Errorf("failed to tag %s: %w", ref, err)
		}
		if _, err := d.runner.Run(ctx, "docker", "push", target.String()); err != nil {
			return fmt.Errorf("failed to push %s: %w", target, err)
		}
	}

	fmt.Printf("✓ Mirrored %d images to %s\n", len(refs), newRegistry)
	return nil
}

// RegistryLogin authenticates docker against the target registry before
// mirroring.
func (d *Driver) RegistryLogin(ctx context.Context, registry, username, password string) error {
	host := registry
	if idx := strings.Index(host, "/"); idx > 0 {
		host = host[:idx]
	}
	if _, err := d.runner.Run(ctx, "docker", "login", host, "-u", username, "-p", password); err != nil {
		return fmt.Errorf("failed to log in to registry %s: %w", host, err)
	}
	fmt.Printf("✓ Logged in to registry %s\n", host)
	return nil
}

// collectImageRefs walks the decoded values tree for maps carrying the
// registry/repo/imageTag triple.
func collectImageRefs(node interface{}) []imageRef {
	var refs []imageRef

	switch v := node.(type) {
	case map[string]interface{}:
		registry, hasRegistry := v["registry"].(string)
		repo, hasRepo := v["repo"].(string)
		tag, hasTag := v["imageTag"].(string)
		if hasRegistry && hasRepo && hasTag {
			refs = append(refs, imageRef{Registry: registry, Repo: repo, Tag: tag})
		}
		for _, child := range v {
			refs = append(refs, collectImageRefs(child)...)
		}
	case []interface{}:
		for _, child := range v {
			refs = append(refs, collectImageRefs(child)...)
		}
	}

	return refs
}

// RewriteRegistry replaces the registry prefix of every image-looking
// string in the values file with newRegistry and writes the file back.
// Comments and key order are not preserved.
func RewriteRegistry(valuesFile, newRegistry string) error {
	data, err := os.ReadFile(valuesFile)
	if err != nil {
		return fmt.Errorf("failed to read values file: %w", err)
	}

	var values interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse values file %s: %w", valuesFile, err)
	}
	if values == nil {
		return fmt.Errorf("values file %s is empty", valuesFile)
	}

	rewritten := rewriteRegistryValues(values, newRegistry)

	out, err := yaml.Marshal(rewritten)
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}
	if err := os.WriteFile(valuesFile, out, 0644); err != nil {
		return fmt.Errorf("failed to write values file: %w", err)
	}
	return nil
}

// rewriteRegistryValues swaps the non-empty segment before the first
// '/' in any string containing one. Only the registry part changes;
// repo and tag stay intact. Strings starting with '/' are paths, not
// image references, and are left alone.
func rewriteRegistryValues(node interface{}, newRegistry string) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if s, ok := child.(string); ok && strings.Index(s, "/") > 0 {
				v[key] = newRegistry + s[strings.Index(s, "/"):]
			} else {
				v[key] = rewriteRegistryValues(child, newRegistry)
			}
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = rewriteRegistryValues(child, newRegistry)
		}
		return v
	default:
		return v
	}
}
