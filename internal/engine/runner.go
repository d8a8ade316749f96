package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/metrics"
	"github.com/quenary/tugtainer/internal/progress"
	"github.com/quenary/tugtainer/internal/store"
)

// CheckGroup runs one group: availability checks for every eligible item,
// then (in update mode) pull, stop in reverse dependency order, recreate in
// forward order with health-gated rollback. Container rows are persisted
// whatever the outcome.
func (e *Engine) CheckGroup(ctx context.Context, client hostclient.API, host store.Host, group *Group, update bool) (*GroupResult, error) {
	key := progress.GroupKey(progress.HostKey(host.ID, host.Name), group.Name)
	if !e.cache.TryStart(key, progress.StatusChecking) {
		return nil, ErrRunning
	}
	metrics.RunsTotal.WithLabelValues("group").Inc()
	log := e.log.With("host", host.Name, "group", group.Name)

	// Check phase.
	for _, it := range group.Items {
		if it.Protected || it.Action == ActionNone {
			continue
		}
		av := e.checkAvailability(ctx, host.ID, client, it)
		it.TempResult = av.Result
		it.ImageSpec = av.ImageSpec
		it.LocalImage = av.LocalImage
		it.LocalDigests = av.LocalDigests
		it.RemoteDigests = av.RemoteDigests
	}

	// Decide. The self group is check-only: the engine never recreates the
	// container it runs in.
	willUpdate := make(map[*Item]bool)
	if update && !group.IsSelf {
		for _, it := range group.Items {
			if it.Action == ActionUpdate && !it.Protected &&
				it.TempResult.availableAny() && isRunning(it.Container) {
				willUpdate[it] = true
			}
		}
	}
	if len(willUpdate) == 0 {
		return e.finishGroup(key, host, group, progress.StatusDone, log), nil
	}

	e.cache.Update(key, func(en *progress.Entry) { en.Status = progress.StatusUpdating })

	// Pull phase. A pull failure aborts the group before anything stops.
	for _, it := range group.Items {
		if !willUpdate[it] {
			continue
		}
		img, err := client.PullImage(ctx, it.ImageSpec)
		if err != nil {
			log.Error("failed to pull image, aborting group",
				"container", it.Name(), "image", it.ImageSpec, "err", err)
			it.TempResult = ResultFailed
			return e.finishGroup(key, host, group, progress.StatusError, log), nil
		}
		it.RemoteImage = &img
	}

	// Stop phase, most dependent first.
	for i := len(group.Items) - 1; i >= 0; i-- {
		it := group.Items[i]
		if it.Protected || !isRunning(it.Container) {
			continue
		}
		it.CreateBody, it.Commands = buildCreateBody(it.Container)
		if err := client.StopContainer(ctx, it.Name()); err != nil {
			log.Error("failed to stop container, restarting the group",
				"container", it.Name(), "err", err)
			e.startStopped(ctx, client, log, group)
			return e.finishGroup(key, host, group, progress.StatusError, log), nil
		}
		it.stopped = true
	}

	// Apply phase, dependencies first.
	hcTimeout := healthTimeout(host.HCTimeout)
	anyFailed := false
	for _, it := range group.Items {
		switch {
		case willUpdate[it] && !anyFailed:
			e.applyUpdate(ctx, client, log, it, hcTimeout, &anyFailed)
		case it.stopped:
			// Items that only got stopped for ordering, and updatable items
			// stranded behind a failed rollback.
			if err := client.StartContainer(ctx, it.Name()); err != nil {
				log.Error("failed to start container", "container", it.Name(), "err", err)
				continue
			}
			if err := e.waitHealthy(ctx, client, it.Name(), hcTimeout); err != nil {
				log.Warn("container is not healthy after restart", "container", it.Name(), "err", err)
			}
		}
	}

	return e.finishGroup(key, host, group, progress.StatusDone, log), nil
}

// applyUpdate recreates one container on its new image. On any failure the
// previous image and config are restored; a rollback that itself fails
// marks the item failed and stops further updates in the group.
func (e *Engine) applyUpdate(ctx context.Context, client hostclient.API, log *logging.Logger, it *Item, hcTimeout time.Duration, anyFailed *bool) {
	name := it.Name()
	log = log.With("container", name, "image", it.ImageSpec)

	err := e.recreate(ctx, client, it, hcTimeout)
	if err == nil {
		it.TempResult = ResultUpdated
		log.Info("container updated")
		return
	}
	log.Error("update failed, rolling back", "err", err)

	if rbErr := e.rollback(ctx, client, log, it, hcTimeout); rbErr != nil {
		log.Error("rollback failed, leaving the group alone", "err", rbErr)
		it.TempResult = ResultFailed
		*anyFailed = true
		return
	}
	it.TempResult = ResultRolledBack
	log.Info("container rolled back to the previous image")
}

// recreate replaces the stopped container with one built from the pulled
// image and the merged config, and waits for it to turn healthy.
func (e *Engine) recreate(ctx context.Context, client hostclient.API, it *Item, hcTimeout time.Duration) error {
	name := it.Name()
	if err := client.RemoveContainer(ctx, name); err != nil {
		return fmt.Errorf("remove old container: %w", err)
	}
	body := mergeWithImage(it.CreateBody, *it.RemoteImage)
	created, err := client.CreateContainer(ctx, *body)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := client.StartContainer(ctx, name); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	if err := e.runCommands(ctx, client, it.Commands); err != nil {
		return err
	}
	if err := e.waitHealthy(ctx, client, name, hcTimeout); err != nil {
		return err
	}
	it.Container = created
	return nil
}

// rollback restores the previous image under the original spec and
// recreates the container with its unmerged config. An unhealthy container
// after a completed rollback is logged, not treated as a rollback failure.
func (e *Engine) rollback(ctx context.Context, client hostclient.API, log *logging.Logger, it *Item, hcTimeout time.Duration) error {
	name := it.Name()

	// The failed instance exists only when the update broke after create.
	if exists, err := client.ContainerExists(ctx, name); err == nil && exists {
		if err := client.StopContainer(ctx, name); err != nil && !hostclient.IsNotFound(err) {
			log.Warn("failed to stop the failed instance", "err", err)
		}
		if err := client.RemoveContainer(ctx, name); err != nil && !hostclient.IsNotFound(err) {
			return fmt.Errorf("remove failed instance: %w", err)
		}
	}

	if it.LocalImage != nil {
		if err := client.TagImage(ctx, it.LocalImage.ID, it.ImageSpec); err != nil {
			return fmt.Errorf("retag previous image: %w", err)
		}
	}
	if _, err := client.CreateContainer(ctx, *it.CreateBody); err != nil {
		return fmt.Errorf("recreate container: %w", err)
	}
	if err := client.StartContainer(ctx, name); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	if err := e.runCommands(ctx, client, it.Commands); err != nil {
		return err
	}
	if err := e.waitHealthy(ctx, client, name, hcTimeout); err != nil {
		log.Warn("container is not healthy after rollback", "err", err)
	}
	return nil
}

// startStopped restarts every container the stop phase already stopped, in
// forward dependency order. Recovery is best-effort.
func (e *Engine) startStopped(ctx context.Context, client hostclient.API, log *logging.Logger, group *Group) {
	for _, it := range group.Items {
		if !it.stopped {
			continue
		}
		if err := client.StartContainer(ctx, it.Name()); err != nil {
			log.Error("failed to restart container during recovery", "container", it.Name(), "err", err)
		}
	}
}

func (e *Engine) runCommands(ctx context.Context, client hostclient.API, commands [][]string) error {
	for _, cmd := range commands {
		out, err := client.RunCommand(ctx, cmd)
		if err != nil {
			return fmt.Errorf("run %v: %w", cmd, err)
		}
		if out[1] != "" {
			e.log.Warn("post-create command wrote to stderr", "command", cmd, "stderr", out[1])
		}
	}
	return nil
}

// finishGroup persists the rows, stores the terminal progress entry and
// builds the group result.
func (e *Engine) finishGroup(key string, host store.Host, group *Group, status progress.Status, log *logging.Logger) *GroupResult {
	gr := e.persistGroup(host, group)
	var counters progress.Counters
	addCounters(&counters, gr.Items)
	e.cache.Set(key, progress.Entry{Status: status, Counters: counters, Result: gr})
	log.Info("group run finished", "status", status, "available", counters.Available,
		"updated", counters.Updated, "rolled_back", counters.RolledBack, "failed", counters.Failed)
	return gr
}

// persistGroup writes the per-container outcome to the store. An update
// that went through clears the availability bit and promotes the remote
// digests to local; a rollback or failure keeps the update marked available
// for the next run.
func (e *Engine) persistGroup(host store.Host, group *Group) *GroupResult {
	gr := &GroupResult{HostID: host.ID, HostName: host.Name}
	for _, it := range group.Items {
		gr.Items = append(gr.Items, ContainerResult{
			Name:          it.Name(),
			ImageSpec:     it.ImageSpec,
			Result:        it.TempResult,
			LocalDigests:  it.LocalDigests,
			RemoteDigests: it.RemoteDigests,
		})
		if it.TempResult == "" {
			continue
		}
		metrics.ContainerResults.WithLabelValues(string(it.TempResult)).Inc()

		available := it.TempResult.availableAny() ||
			it.TempResult == ResultRolledBack || it.TempResult == ResultFailed
		patch := store.ContainerPatch{UpdateAvailable: &available}
		if it.TempResult == ResultUpdated {
			patch.UpdatedAt = e.nowPtr()
			patch.LocalDigests = it.RemoteDigests
		}
		if err := e.store.UpsertContainer(host.ID, it.Name(), patch); err != nil {
			e.log.Error("failed to persist container result",
				"host", host.Name, "container", it.Name(), "err", err)
		}
	}
	return gr
}
