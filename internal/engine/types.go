// Package engine implements the check/update pipeline: grouping containers
// by compose project, deciding update availability from platform digests,
// and recreating containers in dependency order with health-gated rollback.
package engine

import (
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
)

// Action is what the policy row allows for a container.
type Action string

const (
	ActionNone   Action = ""
	ActionCheck  Action = "check"
	ActionUpdate Action = "update"
)

// ResultType is the per-container outcome of a run.
type ResultType string

const (
	ResultNotAvailable      ResultType = "not_available"
	ResultAvailable         ResultType = "available"
	ResultAvailableNotified ResultType = "available(notified)"
	ResultUpdated           ResultType = "updated"
	ResultRolledBack        ResultType = "rolled_back"
	ResultFailed            ResultType = "failed"
)

// Worthy reports whether the outcome deserves a notification.
func (r ResultType) Worthy() bool {
	switch r {
	case ResultAvailable, ResultUpdated, ResultRolledBack, ResultFailed:
		return true
	}
	return false
}

// availableAny reports availability regardless of notification state.
func (r ResultType) availableAny() bool {
	return r == ResultAvailable || r == ResultAvailableNotified
}

// Item is one container inside a Group, with the scratch state of a run.
type Item struct {
	Container container.InspectResponse
	Action    Action
	Protected bool

	// Populated during the check phase.
	TempResult    ResultType
	ImageSpec     string
	LocalImage    *image.InspectResponse
	RemoteImage   *image.InspectResponse
	LocalDigests  []string
	RemoteDigests []string

	// Populated during the stop phase.
	CreateBody *api.CreateContainerBody
	Commands   [][]string
	stopped    bool
}

// Name returns the container name without the leading slash.
func (it *Item) Name() string {
	return trimName(it.Container.Name)
}

// Group is an ordered set of containers processed as a unit. The order is
// topological over depends_on: dependencies first, dependents last.
type Group struct {
	Name   string
	IsSelf bool
	Items  []*Item
}

// ContainerResult is the per-container slice of a group or host result.
type ContainerResult struct {
	Name          string     `json:"name"`
	ImageSpec     string     `json:"image_spec,omitempty"`
	Result        ResultType `json:"result"`
	LocalDigests  []string   `json:"local_digests,omitempty"`
	RemoteDigests []string   `json:"remote_digests,omitempty"`
}

// GroupResult is the outcome of one group run.
type GroupResult struct {
	HostID   int64             `json:"host_id"`
	HostName string            `json:"host_name"`
	Items    []ContainerResult `json:"items"`
}

// HostResult aggregates the group results of one host run.
type HostResult struct {
	HostID      int64             `json:"host_id"`
	HostName    string            `json:"host_name"`
	Items       []ContainerResult `json:"items"`
	PruneResult string            `json:"prune_result,omitempty"`
}

func trimName(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}
