// Package store persists host definitions and per-container policy rows in
// BoltDB. Hosts are keyed by a monotonic ID; container rows by
// "{host_id}::{name}".
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketHosts      = []byte("hosts")
	bucketContainers = []byte("containers")
)

// Host is a monitored engine host.
type Host struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Prune     bool      `json:"prune"`
	PruneAll  bool      `json:"prune_all"`
	TimeoutS  int       `json:"timeout"`              // per-call agent timeout in seconds
	HCTimeout int       `json:"container_hc_timeout"` // health-wait deadline in seconds
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"modified_at"`
}

// ContainerRow is the policy and digest state of one container.
type ContainerRow struct {
	HostID          int64      `json:"host_id"`
	Name            string     `json:"name"`
	CheckEnabled    bool       `json:"check_enabled"`
	UpdateEnabled   bool       `json:"update_enabled"`
	UpdateAvailable bool       `json:"update_available"`
	ImageID         string     `json:"image_id"`
	LocalDigests    []string   `json:"local_digests"`
	RemoteDigests   []string   `json:"remote_digests"`
	CheckedAt       *time.Time `json:"checked_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ModifiedAt      time.Time  `json:"modified_at"`
}

// ContainerPatch carries the fields of a row write. Nil pointers leave the
// stored value untouched; this is the only write path the engine uses.
type ContainerPatch struct {
	CheckEnabled    *bool
	UpdateEnabled   *bool
	UpdateAvailable *bool
	ImageID         *string
	LocalDigests    []string
	RemoteDigests   []string
	CheckedAt       *time.Time
	UpdatedAt       *time.Time
}

// Store wraps a BoltDB database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open creates or opens a BoltDB database at the given path and ensures
// all required buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHosts, bucketContainers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

func hostKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id)) //nolint:gosec // IDs are sequence numbers
	return key
}

func containerKey(hostID int64, name string) []byte {
	return []byte(fmt.Sprintf("%d::%s", hostID, name))
}

// CreateHost stores a new host and assigns its ID.
func (s *Store) CreateHost(h *Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		h.ID = int64(seq) //nolint:gosec // bolt sequences stay well below int64 max
		h.CreatedAt = s.now().UTC()
		h.UpdatedAt = h.CreatedAt
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return b.Put(hostKey(h.ID), data)
	})
}

// UpdateHost replaces an existing host row.
func (s *Store) UpdateHost(h *Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		if b.Get(hostKey(h.ID)) == nil {
			return fmt.Errorf("host %d not found", h.ID)
		}
		h.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return b.Put(hostKey(h.ID), data)
	})
}

// DeleteHost removes a host and all of its container rows.
func (s *Store) DeleteHost(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHosts).Delete(hostKey(id)); err != nil {
			return err
		}
		b := tx.Bucket(bucketContainers)
		c := b.Cursor()
		prefix := []byte(fmt.Sprintf("%d::", id))
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetHost returns a host by ID, or nil when absent.
func (s *Store) GetHost(id int64) (*Host, error) {
	var h *Host
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHosts).Get(hostKey(id))
		if data == nil {
			return nil
		}
		h = &Host{}
		return json.Unmarshal(data, h)
	})
	return h, err
}

// ListHosts returns every host ordered by ID.
func (s *Store) ListHosts() ([]Host, error) {
	var hosts []Host
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(_, v []byte) error {
			var h Host
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			hosts = append(hosts, h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts, nil
}

// EnabledHosts returns the hosts the engine should run against.
func (s *Store) EnabledHosts() ([]Host, error) {
	hosts, err := s.ListHosts()
	if err != nil {
		return nil, err
	}
	enabled := hosts[:0]
	for _, h := range hosts {
		if h.Enabled {
			enabled = append(enabled, h)
		}
	}
	return enabled, nil
}

// HostContainers returns every container row of a host.
func (s *Store) HostContainers(hostID int64) ([]ContainerRow, error) {
	var rows []ContainerRow
	prefix := []byte(fmt.Sprintf("%d::", hostID))
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketContainers).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row ContainerRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

// SelfContainerRow returns the first row matching the controller's own
// container name, searched across all hosts. Nil when no host has one.
func (s *Store) SelfContainerRow(name string) (*ContainerRow, error) {
	var row *ContainerRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(_, v []byte) error {
			if row != nil {
				return nil
			}
			var r ContainerRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Name == name {
				row = &r
			}
			return nil
		})
	})
	return row, err
}

// GetContainer returns one container row, or nil when absent.
func (s *Store) GetContainer(hostID int64, name string) (*ContainerRow, error) {
	var row *ContainerRow
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContainers).Get(containerKey(hostID, name))
		if data == nil {
			return nil
		}
		row = &ContainerRow{}
		return json.Unmarshal(data, row)
	})
	return row, err
}

// UpsertContainer merges the patch into an existing row or creates a new
// one keyed by (hostID, name).
func (s *Store) UpsertContainer(hostID int64, name string, patch ContainerPatch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		key := containerKey(hostID, name)

		row := ContainerRow{HostID: hostID, Name: name, CreatedAt: s.now().UTC()}
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &row); err != nil {
				return err
			}
		}

		if patch.CheckEnabled != nil {
			row.CheckEnabled = *patch.CheckEnabled
		}
		if patch.UpdateEnabled != nil {
			row.UpdateEnabled = *patch.UpdateEnabled
		}
		if patch.UpdateAvailable != nil {
			row.UpdateAvailable = *patch.UpdateAvailable
		}
		if patch.ImageID != nil {
			row.ImageID = *patch.ImageID
		}
		if patch.LocalDigests != nil {
			row.LocalDigests = patch.LocalDigests
		}
		if patch.RemoteDigests != nil {
			row.RemoteDigests = patch.RemoteDigests
		}
		if patch.CheckedAt != nil {
			row.CheckedAt = patch.CheckedAt
		}
		if patch.UpdatedAt != nil {
			row.UpdatedAt = patch.UpdatedAt
		}
		row.ModifiedAt = s.now().UTC()

		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// DeleteContainer removes one container row.
func (s *Store) DeleteContainer(hostID int64, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Delete(containerKey(hostID, name))
	})
}
