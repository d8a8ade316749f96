package engine

import (
	"context"
	"os"

	"github.com/quenary/tugtainer/internal/store"
)

// SelfID returns the identity used to recognize the controller's own
// container. Docker sets a container's hostname to its short ID unless the
// deployment overrides it, which makes the hostname a workable default.
// Deployments with a custom hostname pass an explicit ID instead.
func SelfID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// ClearSelfUpdateFlag drops a stale update_available flag on the
// controller's own row. Every controller start follows an image update in
// practice, so whatever was flagged before the restart is no longer news.
func (e *Engine) ClearSelfUpdateFlag(ctx context.Context) {
	if e.selfID == "" {
		return
	}
	hosts, err := e.store.EnabledHosts()
	if err != nil {
		e.log.Error("failed to load hosts for self lookup", "err", err)
		return
	}

	var name string
	for _, h := range hosts {
		client := e.clientFor(h)
		exists, err := client.ContainerExists(ctx, e.selfID)
		if err != nil || !exists {
			continue
		}
		c, err := client.InspectContainer(ctx, e.selfID)
		if err != nil {
			e.log.Warn("failed to inspect own container", "host", h.Name, "err", err)
			continue
		}
		name = trimName(c.Name)
		break
	}
	if name == "" {
		return
	}

	row, err := e.store.SelfContainerRow(name)
	if err != nil {
		e.log.Error("failed to load own row", "err", err)
		return
	}
	if row == nil || !row.UpdateAvailable {
		return
	}

	e.log.Info("clearing stale self update flag", "container", name)
	cleared := false
	err = e.store.UpsertContainer(row.HostID, row.Name, store.ContainerPatch{
		UpdateAvailable: &cleared,
		CheckedAt:       e.nowPtr(),
	})
	if err != nil {
		e.log.Error("failed to clear self update flag", "err", err)
	}
}
