package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/hostreg"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/metrics"
	"github.com/quenary/tugtainer/internal/progress"
	"github.com/quenary/tugtainer/internal/store"
)

// ErrRunning is returned when a run is requested for a scope that already
// has one in flight.
var ErrRunning = errors.New("a run is already in progress")

// Notifier receives the worthy results of a completed global run.
type Notifier interface {
	Notify(ctx context.Context, results []HostResult)
}

// Engine orchestrates checks and updates across hosts.
type Engine struct {
	store    *store.Store
	cache    *progress.Cache
	reg      *hostreg.Registry
	notifier Notifier
	log      *logging.Logger
	clk      clock.Clock

	protectLabel string
	selfID       string

	// clientFor resolves the agent client of a host. Tests substitute a
	// fake; the default goes through the registry.
	clientFor func(store.Host) hostclient.API
}

// New creates an Engine. notifier may be nil, in which case completed runs
// are not announced.
func New(st *store.Store, cache *progress.Cache, reg *hostreg.Registry, notifier Notifier, log *logging.Logger, clk clock.Clock, protectLabel, selfID string) *Engine {
	e := &Engine{
		store:        st,
		cache:        cache,
		reg:          reg,
		notifier:     notifier,
		log:          log.With("component", "engine"),
		clk:          clk,
		protectLabel: protectLabel,
		selfID:       selfID,
	}
	e.clientFor = func(h store.Host) hostclient.API {
		if c := reg.Get(h.ID); c != nil {
			return c
		}
		return reg.Set(h.ID, h.URL, h.Secret, hostTimeout(h))
	}
	return e
}

func hostTimeout(h store.Host) time.Duration {
	if h.TimeoutS <= 0 {
		return hostclient.DefaultTimeout
	}
	return time.Duration(h.TimeoutS) * time.Second
}

func (e *Engine) nowPtr() *time.Time {
	t := e.clk.Now().UTC()
	return &t
}

// CheckHost runs every group of one host sequentially, then prunes images
// when the host asks for it. With update=false no container is touched
// beyond inspection.
func (e *Engine) CheckHost(ctx context.Context, host store.Host, update bool) (*HostResult, error) {
	key := progress.HostKey(host.ID, host.Name)
	if !e.cache.TryStart(key, progress.StatusPreparing) {
		return nil, ErrRunning
	}
	metrics.RunsTotal.WithLabelValues("host").Inc()
	started := e.clk.Now()
	defer func() { metrics.RunDuration.Observe(e.clk.Since(started).Seconds()) }()

	log := e.log.With("host", host.Name, "host_id", host.ID)
	client := e.clientFor(host)

	containers, err := client.ListContainers(ctx, true)
	if err != nil {
		log.Error("failed to list containers", "err", err)
		metrics.HostErrors.WithLabelValues(host.Name).Inc()
		e.cache.Set(key, progress.Entry{Status: progress.StatusError})
		return nil, fmt.Errorf("list containers on %s: %w", host.Name, err)
	}
	rows, err := e.store.HostContainers(host.ID)
	if err != nil {
		log.Error("failed to load container rows", "err", err)
		metrics.HostErrors.WithLabelValues(host.Name).Inc()
		e.cache.Set(key, progress.Entry{Status: progress.StatusError})
		return nil, fmt.Errorf("load container rows of %s: %w", host.Name, err)
	}

	running := progress.StatusChecking
	if update {
		running = progress.StatusUpdating
	}
	e.cache.Update(key, func(en *progress.Entry) { en.Status = running })

	groups := BuildGroups(containers, rows, e.protectLabel, e.selfID)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &HostResult{HostID: host.ID, HostName: host.Name}
	var counters progress.Counters
	for _, name := range names {
		gr, err := e.CheckGroup(ctx, client, host, groups[name], update)
		if err != nil {
			// An overlapping manual run owns the group; skip it here.
			log.Warn("skipping group", "group", name, "err", err)
			continue
		}
		result.Items = append(result.Items, gr.Items...)
		addCounters(&counters, gr.Items)
		e.cache.Update(key, func(en *progress.Entry) { en.Counters = counters })
	}

	if host.Prune {
		e.cache.Update(key, func(en *progress.Entry) { en.Status = progress.StatusPruning })
		pruned, err := client.PruneImages(ctx, host.PruneAll)
		if err != nil {
			// Prune is housekeeping; its failure never fails the host.
			log.Warn("image prune failed", "err", err)
		} else {
			result.PruneResult = pruned
		}
	}

	e.cache.Set(key, progress.Entry{Status: progress.StatusDone, Counters: counters, Result: result})
	log.Info("host run finished", "available", counters.Available,
		"updated", counters.Updated, "rolled_back", counters.RolledBack, "failed", counters.Failed)
	return result, nil
}

// CheckAll fans out over every enabled host in parallel, aggregates the
// results and hands the worthy ones to the notifier.
func (e *Engine) CheckAll(ctx context.Context, update bool) ([]HostResult, error) {
	if !e.cache.TryStart(progress.AllKey, progress.StatusPreparing) {
		return nil, ErrRunning
	}
	metrics.RunsTotal.WithLabelValues("all").Inc()

	hosts, err := e.store.EnabledHosts()
	if err != nil {
		e.log.Error("failed to load enabled hosts", "err", err)
		e.cache.Set(progress.AllKey, progress.Entry{Status: progress.StatusError})
		return nil, fmt.Errorf("load enabled hosts: %w", err)
	}

	running := progress.StatusChecking
	if update {
		running = progress.StatusUpdating
	}
	e.cache.Update(progress.AllKey, func(en *progress.Entry) { en.Status = running })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []HostResult
		byHost  = make(map[int64]*HostResult, len(hosts))
	)
	for _, host := range hosts {
		wg.Add(1)
		go func(host store.Host) {
			defer wg.Done()
			hr, err := e.CheckHost(ctx, host, update)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A failed host still occupies its slot in the aggregate.
				byHost[host.ID] = nil
				return
			}
			byHost[host.ID] = hr
			results = append(results, *hr)
		}(host)
	}
	wg.Wait()

	var counters progress.Counters
	available := 0
	for _, hr := range results {
		addCounters(&counters, hr.Items)
		for _, it := range hr.Items {
			if it.Result.availableAny() {
				available++
			}
		}
	}
	metrics.UpdatesAvailable.Set(float64(available))
	e.cache.Set(progress.AllKey, progress.Entry{Status: progress.StatusDone, Counters: counters, Result: byHost})

	sort.Slice(results, func(i, j int) bool { return results[i].HostID < results[j].HostID })
	if e.notifier != nil {
		if worthy := worthyResults(results); len(worthy) > 0 {
			e.notifier.Notify(ctx, worthy)
		}
	}
	return results, nil
}

// CheckContainer runs the single group containing the named container, for
// manual operator triggers. With update=true the target's action is raised
// to update even when its policy row only allows checking.
func (e *Engine) CheckContainer(ctx context.Context, host store.Host, name string, update bool) (*GroupResult, error) {
	client := e.clientFor(host)

	target, err := client.InspectContainer(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s on %s: %w", name, host.Name, err)
	}
	containers, err := client.ListContainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list containers on %s: %w", host.Name, err)
	}
	rows, err := e.store.HostContainers(host.ID)
	if err != nil {
		return nil, fmt.Errorf("load container rows of %s: %w", host.Name, err)
	}

	group := BuildGroupFor(target, containers, rows, e.protectLabel, e.selfID, update)
	return e.CheckGroup(ctx, client, host, group, update)
}

// worthyResults filters host results down to the items worth announcing,
// dropping hosts left with none.
func worthyResults(results []HostResult) []HostResult {
	var out []HostResult
	for _, hr := range results {
		var items []ContainerResult
		for _, it := range hr.Items {
			if it.Result.Worthy() {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		hr.Items = items
		out = append(out, hr)
	}
	return out
}

func addCounters(c *progress.Counters, items []ContainerResult) {
	for _, it := range items {
		switch {
		case it.Result.availableAny():
			c.Available++
		case it.Result == ResultUpdated:
			c.Updated++
		case it.Result == ResultRolledBack:
			c.RolledBack++
		case it.Result == ResultFailed:
			c.Failed++
		}
	}
}
