package agent

import (
	"context"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"

	"github.com/quenary/tugtainer/internal/api"
)

// mockEngine implements docker.Engine for handler tests.
type mockEngine struct {
	mu sync.Mutex

	pingErr error

	containers    []container.InspectResponse
	containersErr error

	inspectResults map[string]container.InspectResponse
	inspectErr     map[string]error

	createCalls  []string
	createBodies map[string]api.CreateContainerBody
	createErr    map[string]error

	startCalls   []string
	stopCalls    []string
	restartCalls []string
	killCalls    []string
	pauseCalls   []string
	unpauseCalls []string
	removeCalls  []string
	lifecycleErr map[string]error

	images    []image.InspectResponse
	imagesErr error

	imageInspect    map[string]image.InspectResponse
	imageInspectErr map[string]error

	pullCalls []string
	pullErr   map[string]error

	tagCalls []string
	tagErr   map[string]error

	pruneResult string
	pruneErr    error

	manifests   map[string]api.ManifestInspect
	manifestErr map[string]error

	commandCalls  [][]string
	commandStdout string
	commandStderr string
	commandErr    error
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		inspectResults:  make(map[string]container.InspectResponse),
		inspectErr:      make(map[string]error),
		createBodies:    make(map[string]api.CreateContainerBody),
		createErr:       make(map[string]error),
		lifecycleErr:    make(map[string]error),
		imageInspect:    make(map[string]image.InspectResponse),
		imageInspectErr: make(map[string]error),
		pullErr:         make(map[string]error),
		tagErr:          make(map[string]error),
		manifests:       make(map[string]api.ManifestInspect),
		manifestErr:     make(map[string]error),
	}
}

func (m *mockEngine) Ping(context.Context) error { return m.pingErr }

func (m *mockEngine) ListContainers(_ context.Context, _ bool) ([]container.InspectResponse, error) {
	return m.containers, m.containersErr
}

func (m *mockEngine) ContainerExists(_ context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inspectResults[ref]
	return ok, nil
}

func (m *mockEngine) InspectContainer(_ context.Context, ref string) (container.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inspectErr[ref]; err != nil {
		return container.InspectResponse{}, err
	}
	resp, ok := m.inspectResults[ref]
	if !ok {
		return container.InspectResponse{}, errdefs.ErrNotFound
	}
	return resp, nil
}

func (m *mockEngine) CreateContainer(_ context.Context, body api.CreateContainerBody) (container.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, body.Name)
	m.createBodies[body.Name] = body
	if err := m.createErr[body.Name]; err != nil {
		return container.InspectResponse{}, err
	}
	return m.inspectResults[body.Name], nil
}

func (m *mockEngine) lifecycleOp(calls *[]string, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, ref)
	return m.lifecycleErr[ref]
}

func (m *mockEngine) StartContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.startCalls, ref)
}

func (m *mockEngine) StopContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.stopCalls, ref)
}

func (m *mockEngine) RestartContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.restartCalls, ref)
}

func (m *mockEngine) KillContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.killCalls, ref)
}

func (m *mockEngine) PauseContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.pauseCalls, ref)
}

func (m *mockEngine) UnpauseContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.unpauseCalls, ref)
}

func (m *mockEngine) RemoveContainer(_ context.Context, ref string) error {
	return m.lifecycleOp(&m.removeCalls, ref)
}

func (m *mockEngine) ListImages(_ context.Context, _ map[string][]string) ([]image.InspectResponse, error) {
	return m.images, m.imagesErr
}

func (m *mockEngine) InspectImage(_ context.Context, specOrID string) (image.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.imageInspectErr[specOrID]; err != nil {
		return image.InspectResponse{}, err
	}
	resp, ok := m.imageInspect[specOrID]
	if !ok {
		return image.InspectResponse{}, errdefs.ErrNotFound
	}
	return resp, nil
}

func (m *mockEngine) PullImage(_ context.Context, ref string) (image.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullCalls = append(m.pullCalls, ref)
	if err := m.pullErr[ref]; err != nil {
		return image.InspectResponse{}, err
	}
	return m.imageInspect[ref], nil
}

func (m *mockEngine) TagImage(_ context.Context, specOrID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagCalls = append(m.tagCalls, specOrID+"→"+tag)
	return m.tagErr[specOrID]
}

func (m *mockEngine) PruneImages(context.Context, bool) (string, error) {
	return m.pruneResult, m.pruneErr
}

func (m *mockEngine) InspectManifest(_ context.Context, specOrDigest string) (api.ManifestInspect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.manifestErr[specOrDigest]; err != nil {
		return api.ManifestInspect{}, err
	}
	return m.manifests[specOrDigest], nil
}

func (m *mockEngine) RunCommand(_ context.Context, args []string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCalls = append(m.commandCalls, args)
	return m.commandStdout, m.commandStderr, m.commandErr
}
