package engine

import (
	"context"
	"sort"

	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/store"
)

// availability is the outcome of one per-container check.
type availability struct {
	Result        ResultType
	ImageSpec     string
	LocalImage    *image.InspectResponse
	LocalDigests  []string
	RemoteDigests []string
}

// checkAvailability decides whether a newer image exists for the container
// and persists the digest state. It never returns an error: every failure is
// logged and the result defaults to not_available.
func (e *Engine) checkAvailability(ctx context.Context, hostID int64, client hostclient.API, it *Item) availability {
	name := it.Name()
	log := e.log.With("container", name, "host_id", hostID)
	res := availability{Result: ResultNotAvailable}

	if it.Container.Config == nil || it.Container.Config.Image == "" {
		log.Warn("cannot check, container has no image spec")
		return res
	}
	res.ImageSpec = it.Container.Config.Image

	ref := it.Container.Image
	if ref == "" {
		ref = res.ImageSpec
	}
	localImage, err := client.InspectImage(ctx, ref)
	if err != nil {
		log.Error("failed to inspect local image", "ref", ref, "err", err)
		return res
	}
	res.LocalImage = &localImage

	if len(localImage.RepoDigests) == 0 {
		log.Warn("image has no repo digests, presumably built locally")
		return res
	}
	if localImage.Architecture == "" || localImage.Os == "" {
		log.Warn("image is missing platform information")
		return res
	}

	row, err := e.store.GetContainer(hostID, name)
	if err != nil {
		log.Error("failed to load container row", "err", err)
		return res
	}

	imageID := localImage.ID
	localDigests := e.resolveLocalDigests(ctx, client, log, row, localImage, imageID)
	res.LocalDigests = localDigests

	remoteManifest, err := client.InspectManifest(ctx, res.ImageSpec)
	if err != nil {
		log.Error("failed to inspect remote manifest", "spec", res.ImageSpec, "err", err)
		e.persistCheck(log, hostID, name, store.ContainerPatch{
			ImageID:      &imageID,
			LocalDigests: localDigests,
			CheckedAt:    e.nowPtr(),
		})
		return res
	}
	remoteDigests := digestsForPlatform(remoteManifest, localImage.Architecture, localImage.Os, imageID)
	res.RemoteDigests = remoteDigests

	patch := store.ContainerPatch{
		ImageID:      &imageID,
		LocalDigests: localDigests,
		CheckedAt:    e.nowPtr(),
	}

	if len(remoteDigests) > 0 && !digestsEqual(remoteDigests, localDigests) {
		res.Result = ResultAvailable
		if row != nil && digestsEqual(row.RemoteDigests, remoteDigests) {
			// Already announced in a previous run.
			res.Result = ResultAvailableNotified
		} else {
			patch.RemoteDigests = remoteDigests
		}
	} else if row != nil && len(row.RemoteDigests) > 0 {
		// A stale availability marker would suppress the next real one.
		patch.RemoteDigests = []string{}
	}

	log.Info("availability check finished", "result", res.Result,
		"local_digests", localDigests, "remote_digests", remoteDigests)
	e.persistCheck(log, hostID, name, patch)
	return res
}

// resolveLocalDigests returns the platform digests of the local image,
// reusing the stored set when the image has not changed since the last run.
func (e *Engine) resolveLocalDigests(ctx context.Context, client hostclient.API, log *logging.Logger, row *store.ContainerRow, localImage image.InspectResponse, imageID string) []string {
	if row != nil && len(row.LocalDigests) > 0 && row.ImageID == imageID {
		return row.LocalDigests
	}

	for _, digest := range localImage.RepoDigests {
		manifest, err := client.InspectManifest(ctx, digest)
		if err != nil {
			log.Warn("failed to inspect local manifest", "digest", digest, "err", err)
			continue
		}
		if digests := digestsForPlatform(manifest, localImage.Architecture, localImage.Os, imageID); len(digests) > 0 {
			return digests
		}
	}
	return []string{imageID}
}

func (e *Engine) persistCheck(log *logging.Logger, hostID int64, name string, patch store.ContainerPatch) {
	if err := e.store.UpsertContainer(hostID, name, patch); err != nil {
		log.Error("failed to persist check result", "err", err)
	}
}

// digestsForPlatform extracts the digest set relevant to the local platform
// from a manifest. Multi-platform indexes are filtered by (architecture,
// os); single-platform manifests expose their config digest, which equals
// the local image ID when the image is current.
func digestsForPlatform(m api.ManifestInspect, architecture, os, imageID string) []string {
	if len(m.Manifests) > 0 {
		var digests []string
		for _, desc := range m.Manifests {
			if desc.Platform != nil && desc.Digest != "" &&
				desc.Platform.Architecture == architecture && desc.Platform.OS == os {
				digests = append(digests, desc.Digest)
			}
		}
		return digests
	}
	if m.Config != nil && m.Config.Digest != "" {
		return []string{m.Config.Digest}
	}
	return []string{imageID}
}

// digestsEqual compares two digest sets ignoring order.
func digestsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
