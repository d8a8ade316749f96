// Command tugtainer is the controller: it schedules check/update runs
// across the registered hosts, talks to the per-host agents, persists
// container state in BoltDB and serves the operator API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/config"
	"github.com/quenary/tugtainer/internal/engine"
	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/hostreg"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/notify"
	"github.com/quenary/tugtainer/internal/progress"
	"github.com/quenary/tugtainer/internal/store"
	"github.com/quenary/tugtainer/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.New(cfg.LogJSON)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.HostsFile != "" {
		if err := seedHosts(st, cfg.HostsFile, log); err != nil {
			return fmt.Errorf("seed hosts from %s: %w", cfg.HostsFile, err)
		}
	}

	clk := clock.Real{}
	reg := hostreg.New(clk)
	hosts, err := st.EnabledHosts()
	if err != nil {
		return fmt.Errorf("load enabled hosts: %w", err)
	}
	for _, h := range hosts {
		timeout := hostclient.DefaultTimeout
		if h.TimeoutS > 0 {
			timeout = time.Duration(h.TimeoutS) * time.Second
		}
		reg.Set(h.ID, h.URL, h.Secret, timeout)
	}
	log.Info("hosts registered", "count", len(hosts))

	providers, err := notify.ParseURLs(cfg.NotificationURLs, log)
	if err != nil {
		return fmt.Errorf("parse notification urls: %w", err)
	}
	if len(providers) == 0 {
		providers = []notify.Provider{notify.NewLogProvider(log)}
	}
	bridge, err := notify.NewBridge(providers, cfg.NotificationTitleTemplate, cfg.NotificationBodyTemplate, log)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	cache := progress.NewCache()
	eng := engine.New(st, cache, reg, bridge, log, clk, cfg.ProtectLabel, engine.SelfID(cfg.SelfID))

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), time.Minute)
	eng.ClearSelfUpdateFlag(bootCtx)
	cancelBoot()

	sched, err := engine.NewScheduler(eng, cfg.Crontab, cfg.Location(), log)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	log.Info("scheduler started", "crontab", cfg.Crontab, "timezone", cfg.Timezone)

	srv := web.NewServer(st, cache, reg, eng, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(cfg.WebPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
