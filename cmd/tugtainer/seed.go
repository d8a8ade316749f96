package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/store"
)

// seedHost is one host definition in the YAML seed file.
type seedHost struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	Enabled   *bool  `yaml:"enabled"` // absent means enabled
	Prune     bool   `yaml:"prune"`
	PruneAll  bool   `yaml:"prune_all"`
	TimeoutS  int    `yaml:"timeout"`
	HCTimeout int    `yaml:"container_hc_timeout"`
}

type seedFile struct {
	Hosts []seedHost `yaml:"hosts"`
}

// seedHosts upserts the hosts declared in a YAML file, keyed by name.
// Existing hosts keep their ID and container rows; fields are overwritten
// with the file's values so the file stays the source of truth.
func seedHosts(st *store.Store, path string, log *logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	existing, err := st.ListHosts()
	if err != nil {
		return err
	}
	byName := make(map[string]store.Host, len(existing))
	for _, h := range existing {
		byName[h.Name] = h
	}

	for i, sh := range file.Hosts {
		if sh.Name == "" || sh.URL == "" || sh.Secret == "" {
			return fmt.Errorf("host %d: name, url and secret are required", i)
		}
		enabled := sh.Enabled == nil || *sh.Enabled

		if prev, ok := byName[sh.Name]; ok {
			prev.URL = sh.URL
			prev.Secret = sh.Secret
			prev.Enabled = enabled
			prev.Prune = sh.Prune
			prev.PruneAll = sh.PruneAll
			prev.TimeoutS = sh.TimeoutS
			prev.HCTimeout = sh.HCTimeout
			if err := st.UpdateHost(&prev); err != nil {
				return fmt.Errorf("update host %s: %w", sh.Name, err)
			}
			log.Info("seed host updated", "host", sh.Name, "enabled", enabled)
			continue
		}

		h := store.Host{
			Name:      sh.Name,
			URL:       sh.URL,
			Secret:    sh.Secret,
			Enabled:   enabled,
			Prune:     sh.Prune,
			PruneAll:  sh.PruneAll,
			TimeoutS:  sh.TimeoutS,
			HCTimeout: sh.HCTimeout,
		}
		if err := st.CreateHost(&h); err != nil {
			return fmt.Errorf("create host %s: %w", sh.Name, err)
		}
		log.Info("seed host created", "host", sh.Name, "host_id", h.ID, "enabled", enabled)
	}
	return nil
}
