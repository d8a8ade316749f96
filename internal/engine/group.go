package engine

import (
	"strings"

	"github.com/google/uuid"
	"github.com/moby/moby/api/types/container"

	"github.com/quenary/tugtainer/internal/store"
)

// SelfGroupName is the reserved group of the controller's own container.
const SelfGroupName = "self_container"

const (
	labelProject     = "com.docker.compose.project"
	labelConfigFiles = "com.docker.compose.project.config_files"
	labelService     = "com.docker.compose.service"
	labelDependsOn   = "com.docker.compose.depends_on"
)

func containerLabels(c container.InspectResponse) map[string]string {
	if c.Config == nil || c.Config.Labels == nil {
		return map[string]string{}
	}
	return c.Config.Labels
}

// groupName derives the group key of a container: the compose project and
// config-files labels when present, the container name otherwise.
func groupName(c container.InspectResponse) string {
	labels := containerLabels(c)
	proj := labels[labelProject]
	files := labels[labelConfigFiles]
	if proj != "" || files != "" {
		return proj + ":" + files
	}
	if name := trimName(c.Name); name != "" {
		return name
	}
	return uuid.NewString()
}

// serviceName returns the compose service name, falling back to the
// container name.
func serviceName(c container.InspectResponse) string {
	if s := containerLabels(c)[labelService]; s != "" {
		return s
	}
	return trimName(c.Name)
}

// dependencies parses the depends_on label. Entries look like
// "service:condition:value" separated by commas; only the service name
// matters here.
func dependencies(c container.InspectResponse) []string {
	label := containerLabels(c)[labelDependsOn]
	if label == "" {
		return nil
	}
	var deps []string
	for _, dep := range strings.Split(label, ",") {
		name, _, _ := strings.Cut(dep, ":")
		if name != "" {
			deps = append(deps, name)
		}
	}
	return deps
}

// isSelfContainer matches the controller's own container: either the
// configured self ID starts with the container's short ID, or the
// container's hostname equals it.
func isSelfContainer(c container.InspectResponse, selfID string) bool {
	if selfID == "" {
		return false
	}
	short := c.ID
	if len(short) > 12 {
		short = short[:12]
	}
	if short != "" && strings.HasPrefix(selfID, short) {
		return true
	}
	if c.Config != nil && c.Config.Hostname != "" && c.Config.Hostname == selfID {
		return true
	}
	return false
}

// sortByDependencies orders items so dependencies come before dependents,
// using depth-first post-order. The visited set makes cycles degrade to
// insertion order instead of recursing forever. Dependencies naming
// services outside the group are dropped.
func sortByDependencies(items []*Item) []*Item {
	itemBy := make(map[string]*Item, len(items))
	depsBy := make(map[string][]string, len(items))
	order := make([]string, 0, len(items))

	for _, it := range items {
		svc := serviceName(it.Container)
		if _, dup := itemBy[svc]; dup {
			// Duplicate service names keep their own slot by container name.
			svc = it.Name()
		}
		itemBy[svc] = it
		depsBy[svc] = dependencies(it.Container)
		order = append(order, svc)
	}

	visited := make(map[string]bool, len(items))
	sorted := make([]*Item, 0, len(items))

	var visit func(svc string)
	visit = func(svc string) {
		if visited[svc] {
			return
		}
		visited[svc] = true
		for _, dep := range depsBy[svc] {
			if _, ok := itemBy[dep]; ok {
				visit(dep)
			}
		}
		sorted = append(sorted, itemBy[svc])
	}

	for _, svc := range order {
		visit(svc)
	}
	return sorted
}

// actionFor derives the item action from the policy row.
func actionFor(row *store.ContainerRow) Action {
	if row == nil || !row.CheckEnabled {
		return ActionNone
	}
	if row.UpdateEnabled {
		return ActionUpdate
	}
	return ActionCheck
}

func rowFor(name string, rows []store.ContainerRow) *store.ContainerRow {
	for i := range rows {
		if rows[i].Name == name {
			return &rows[i]
		}
	}
	return nil
}

// newItem builds a group item, applying the protection label and policy.
func newItem(c container.InspectResponse, rows []store.ContainerRow, protectLabel string) *Item {
	it := &Item{Container: c}
	if containerLabels(c)[protectLabel] == "true" {
		it.Protected = true
		return it
	}
	it.Action = actionFor(rowFor(trimName(c.Name), rows))
	return it
}

// BuildGroups splits a host's containers into dependency-ordered groups.
// The controller's own container lands in the reserved self group with
// action check.
func BuildGroups(containers []container.InspectResponse, rows []store.ContainerRow, protectLabel, selfID string) map[string]*Group {
	groups := make(map[string]*Group)

	for _, c := range containers {
		if isSelfContainer(c, selfID) {
			groups[SelfGroupName] = &Group{
				Name:   SelfGroupName,
				IsSelf: true,
				Items:  []*Item{{Container: c, Action: ActionCheck}},
			}
			continue
		}

		key := groupName(c)
		g, ok := groups[key]
		if !ok {
			g = &Group{Name: key}
			groups[key] = g
		}
		g.Items = append(g.Items, newItem(c, rows, protectLabel))
	}

	for _, g := range groups {
		g.Items = sortByDependencies(g.Items)
	}
	return groups
}

// BuildGroupFor builds the single group containing target, for manual
// per-container runs. With forceUpdate the target's action is raised to
// update regardless of policy, unless the container is protected.
func BuildGroupFor(target container.InspectResponse, containers []container.InspectResponse, rows []store.ContainerRow, protectLabel, selfID string, forceUpdate bool) *Group {
	if isSelfContainer(target, selfID) {
		return &Group{
			Name:   SelfGroupName,
			IsSelf: true,
			Items:  []*Item{{Container: target, Action: ActionCheck}},
		}
	}

	targetItem := newItem(target, rows, protectLabel)
	if forceUpdate && !targetItem.Protected {
		targetItem.Action = ActionUpdate
	}

	key := groupName(target)
	g := &Group{Name: key, Items: []*Item{targetItem}}
	for _, c := range containers {
		if c.ID == target.ID || isSelfContainer(c, selfID) {
			continue
		}
		if groupName(c) == key {
			g.Items = append(g.Items, newItem(c, rows, protectLabel))
		}
	}
	g.Items = sortByDependencies(g.Items)
	return g
}
