package engine

import (
	"context"
	"sync"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/hostclient"
)

// fakeClock advances by d on every After call, so polling loops run without
// real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func notFoundErr(ref string) error {
	return &hostclient.Error{Kind: hostclient.KindNotFound, Status: 404, Detail: "no such object: " + ref}
}

// mockAPI implements hostclient.API for engine tests. Create and remove
// mutate the inspect map so follow-up health polls see the new instance.
type mockAPI struct {
	mu sync.Mutex

	containers    []container.InspectResponse
	containersErr error

	inspect    map[string]container.InspectResponse
	inspectErr map[string]error
	// inspectSeq is drained before the static inspect map, for tests that
	// need a container's state to change between polls.
	inspectSeq map[string][]container.InspectResponse

	createCalls  []string
	createBodies []api.CreateContainerBody
	createErr    map[string]error
	// createStates queues, per container name, the inspect state each
	// create leaves behind. Default is running without a healthcheck.
	createStates map[string][]container.InspectResponse

	startCalls  []string
	stopCalls   []string
	removeCalls []string
	startErr    map[string]error
	stopErr     map[string]error
	removeErr   map[string]error

	images      map[string]image.InspectResponse
	imageErr    map[string]error
	pullCalls   []string
	pullResults map[string]image.InspectResponse
	pullErr     map[string]error
	tagCalls    []string
	tagErr      error

	manifests   map[string]api.ManifestInspect
	manifestErr map[string]error

	pruneCalls  int
	pruneResult string
	pruneErr    error

	commandCalls [][]string
	commandErr   error
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		inspect:      make(map[string]container.InspectResponse),
		inspectErr:   make(map[string]error),
		inspectSeq:   make(map[string][]container.InspectResponse),
		createErr:    make(map[string]error),
		createStates: make(map[string][]container.InspectResponse),
		startErr:     make(map[string]error),
		stopErr:      make(map[string]error),
		removeErr:    make(map[string]error),
		images:       make(map[string]image.InspectResponse),
		imageErr:     make(map[string]error),
		pullResults:  make(map[string]image.InspectResponse),
		pullErr:      make(map[string]error),
		manifests:    make(map[string]api.ManifestInspect),
		manifestErr:  make(map[string]error),
	}
}

func (m *mockAPI) Health(context.Context) error { return nil }
func (m *mockAPI) Access(context.Context) error { return nil }

func (m *mockAPI) ListContainers(context.Context, bool) ([]container.InspectResponse, error) {
	return m.containers, m.containersErr
}

func (m *mockAPI) ContainerExists(_ context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inspect[ref]
	return ok, nil
}

func (m *mockAPI) InspectContainer(_ context.Context, ref string) (container.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inspectErr[ref]; err != nil {
		return container.InspectResponse{}, err
	}
	if queue := m.inspectSeq[ref]; len(queue) > 0 {
		m.inspectSeq[ref] = queue[1:]
		return queue[0], nil
	}
	c, ok := m.inspect[ref]
	if !ok {
		return container.InspectResponse{}, notFoundErr(ref)
	}
	return c, nil
}

func (m *mockAPI) CreateContainer(_ context.Context, body api.CreateContainerBody) (container.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, body.Name)
	m.createBodies = append(m.createBodies, body)
	if err := m.createErr[body.Name]; err != nil {
		return container.InspectResponse{}, err
	}
	state := runningContainer("new-"+body.Name, body.Name, "", "")
	if queue := m.createStates[body.Name]; len(queue) > 0 {
		state = queue[0]
		m.createStates[body.Name] = queue[1:]
	}
	m.inspect[body.Name] = state
	return state, nil
}

func (m *mockAPI) StartContainer(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls = append(m.startCalls, ref)
	return m.startErr[ref]
}

func (m *mockAPI) StopContainer(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls = append(m.stopCalls, ref)
	return m.stopErr[ref]
}

func (m *mockAPI) RestartContainer(context.Context, string) error { return nil }
func (m *mockAPI) KillContainer(context.Context, string) error    { return nil }
func (m *mockAPI) PauseContainer(context.Context, string) error   { return nil }
func (m *mockAPI) UnpauseContainer(context.Context, string) error { return nil }

func (m *mockAPI) RemoveContainer(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls = append(m.removeCalls, ref)
	if err := m.removeErr[ref]; err != nil {
		return err
	}
	delete(m.inspect, ref)
	return nil
}

func (m *mockAPI) ListImages(context.Context, map[string][]string) ([]image.InspectResponse, error) {
	return nil, nil
}

func (m *mockAPI) InspectImage(_ context.Context, specOrID string) (image.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.imageErr[specOrID]; err != nil {
		return image.InspectResponse{}, err
	}
	img, ok := m.images[specOrID]
	if !ok {
		return image.InspectResponse{}, notFoundErr(specOrID)
	}
	return img, nil
}

func (m *mockAPI) PullImage(_ context.Context, ref string) (image.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullCalls = append(m.pullCalls, ref)
	if err := m.pullErr[ref]; err != nil {
		return image.InspectResponse{}, err
	}
	return m.pullResults[ref], nil
}

func (m *mockAPI) TagImage(_ context.Context, specOrID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagCalls = append(m.tagCalls, specOrID+" "+tag)
	return m.tagErr
}

func (m *mockAPI) PruneImages(context.Context, bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	return m.pruneResult, m.pruneErr
}

func (m *mockAPI) InspectManifest(_ context.Context, specOrDigest string) (api.ManifestInspect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.manifestErr[specOrDigest]; err != nil {
		return api.ManifestInspect{}, err
	}
	mf, ok := m.manifests[specOrDigest]
	if !ok {
		return api.ManifestInspect{}, notFoundErr(specOrDigest)
	}
	return mf, nil
}

func (m *mockAPI) RunCommand(_ context.Context, args []string) (api.CommandRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCalls = append(m.commandCalls, args)
	return api.CommandRunResult{"", ""}, m.commandErr
}

func runningContainer(id, name, spec, imageID string) container.InspectResponse {
	return container.InspectResponse{
		ID:    id,
		Name:  "/" + name,
		Image: imageID,
		Config: &container.Config{
			Image:  spec,
			Labels: map[string]string{},
		},
		State: &container.State{Running: true, Status: "running"},
	}
}

func withLabels(c container.InspectResponse, labels map[string]string) container.InspectResponse {
	for k, v := range labels {
		c.Config.Labels[k] = v
	}
	return c
}

func healthyState(id, name string) container.InspectResponse {
	c := runningContainer(id, name, "", "")
	c.State.Health = &container.Health{Status: "healthy"}
	return c
}

func unhealthyState(id, name string) container.InspectResponse {
	c := runningContainer(id, name, "", "")
	c.State.Health = &container.Health{Status: "unhealthy"}
	return c
}

func fixtureImage(id, repoDigest string) image.InspectResponse {
	return image.InspectResponse{
		ID:           id,
		RepoDigests:  []string{repoDigest},
		Architecture: "amd64",
		Os:           "linux",
	}
}

func manifestFor(digests ...string) api.ManifestInspect {
	var m api.ManifestInspect
	for _, d := range digests {
		m.Manifests = append(m.Manifests, api.ManifestDescriptor{
			Digest:   d,
			Platform: &api.ManifestPlatform{Architecture: "amd64", OS: "linux"},
		})
	}
	return m
}
