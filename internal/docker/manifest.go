package docker

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/quenary/tugtainer/internal/api"
)

// InspectManifest fetches the manifest of an image reference from its
// registry without pulling it. Multi-platform indexes are flattened into the
// per-platform descriptor list; single-platform manifests carry their config
// descriptor instead.
func (c *Client) InspectManifest(ctx context.Context, specOrDigest string) (api.ManifestInspect, error) {
	ref, err := name.ParseReference(specOrDigest, name.WeakValidation)
	if err != nil {
		return api.ManifestInspect{}, fmt.Errorf("parse image reference %q: %w", specOrDigest, err)
	}

	desc, err := remote.Get(ref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
	if err != nil {
		return api.ManifestInspect{}, fmt.Errorf("fetch manifest %q: %w", specOrDigest, err)
	}

	out := api.ManifestInspect{
		MediaType: string(desc.MediaType),
		Digest:    desc.Digest.String(),
	}

	if desc.MediaType.IsIndex() {
		idx, err := desc.ImageIndex()
		if err != nil {
			return api.ManifestInspect{}, fmt.Errorf("read image index: %w", err)
		}
		im, err := idx.IndexManifest()
		if err != nil {
			return api.ManifestInspect{}, fmt.Errorf("parse image index: %w", err)
		}
		for _, m := range im.Manifests {
			entry := api.ManifestDescriptor{
				MediaType: string(m.MediaType),
				Digest:    m.Digest.String(),
			}
			if m.Platform != nil {
				entry.Platform = &api.ManifestPlatform{
					Architecture: m.Platform.Architecture,
					OS:           m.Platform.OS,
					Variant:      m.Platform.Variant,
				}
			}
			out.Manifests = append(out.Manifests, entry)
		}
		return out, nil
	}

	img, err := desc.Image()
	if err != nil {
		return api.ManifestInspect{}, fmt.Errorf("read image manifest: %w", err)
	}
	mf, err := img.Manifest()
	if err != nil {
		return api.ManifestInspect{}, fmt.Errorf("parse image manifest: %w", err)
	}
	out.Config = &api.ManifestConfig{
		MediaType: string(mf.Config.MediaType),
		Digest:    mf.Config.Digest.String(),
	}
	return out, nil
}
