package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/engine"
	"github.com/quenary/tugtainer/internal/hostreg"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/progress"
	"github.com/quenary/tugtainer/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *progress.Cache, *hostreg.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache := progress.NewCache()
	reg := hostreg.New(clock.Real{})
	log := logging.New(false)
	eng := engine.New(st, cache, reg, nil, log, clock.Real{}, "tugtainer.protected", "")
	return NewServer(st, cache, reg, eng, log), st, cache, reg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHostCreateRegistersClient(t *testing.T) {
	s, _, _, reg := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/hosts", store.Host{
		Name: "edge", URL: "http://edge:8401", Secret: "s3cret", Enabled: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	h := decode[store.Host](t, rec)
	if h.ID == 0 {
		t.Error("created host has no id")
	}
	if h.Secret != "" {
		t.Error("secret leaked in response")
	}
	if reg.Get(h.ID) == nil {
		t.Error("enabled host has no registry client")
	}
}

func TestHostCreateDisabledStaysUnregistered(t *testing.T) {
	s, _, _, reg := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/hosts", store.Host{
		Name: "edge", URL: "http://edge:8401", Secret: "s3cret",
	})
	h := decode[store.Host](t, rec)
	if reg.Get(h.ID) != nil {
		t.Error("disabled host has a registry client")
	}
}

func TestHostCreateValidation(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/hosts", store.Host{Name: "edge"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHostUpdateKeepsSecretAndSyncsRegistry(t *testing.T) {
	s, st, _, reg := newTestServer(t)

	host := store.Host{Name: "edge", URL: "http://edge:8401", Secret: "s3cret", Enabled: true}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	reg.Set(host.ID, host.URL, host.Secret, 0)

	rec := doJSON(t, s.Handler(), http.MethodPut, "/api/hosts/1", store.Host{
		Name: "edge", URL: "http://edge:9000", Enabled: false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := st.GetHost(host.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload host: %v", err)
	}
	if stored.Secret != "s3cret" {
		t.Errorf("secret = %q, empty PUT secret should keep the stored one", stored.Secret)
	}
	if stored.URL != "http://edge:9000" {
		t.Errorf("url = %q", stored.URL)
	}
	if reg.Get(host.ID) != nil {
		t.Error("disabled host still has a registry client")
	}
}

func TestHostDelete(t *testing.T) {
	s, st, _, reg := newTestServer(t)

	host := store.Host{Name: "edge", URL: "http://edge:8401", Secret: "s", Enabled: true}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	reg.Set(host.ID, host.URL, host.Secret, 0)

	rec := doJSON(t, s.Handler(), http.MethodDelete, "/api/hosts/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if h, _ := st.GetHost(host.ID); h != nil {
		t.Error("host still stored")
	}
	if reg.Get(host.ID) != nil {
		t.Error("deleted host still has a registry client")
	}
}

func TestHostGetMissing(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/hosts/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHostListMasksSecrets(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	if err := st.CreateHost(&store.Host{Name: "edge", URL: "u", Secret: "hidden"}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/hosts", nil)
	hosts := decode[[]store.Host](t, rec)
	if len(hosts) != 1 || hosts[0].Secret != "" {
		t.Errorf("hosts = %+v", hosts)
	}
}

func TestContainerPatchCreatesRow(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	host := store.Host{Name: "edge", URL: "u", Secret: "s"}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}

	check, update := true, false
	rec := doJSON(t, s.Handler(), http.MethodPatch, "/api/hosts/1/containers/web",
		containerPolicyBody{CheckEnabled: &check, UpdateEnabled: &update})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	row := decode[store.ContainerRow](t, rec)
	if !row.CheckEnabled || row.UpdateEnabled {
		t.Errorf("row = %+v", row)
	}

	stored, err := st.GetContainer(host.ID, "web")
	if err != nil || stored == nil {
		t.Fatalf("row not created: %v", err)
	}
}

func TestContainerPatchPartial(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	host := store.Host{Name: "edge", URL: "u", Secret: "s"}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	both := true
	if err := st.UpsertContainer(host.ID, "web", store.ContainerPatch{CheckEnabled: &both, UpdateEnabled: &both}); err != nil {
		t.Fatal(err)
	}

	off := false
	rec := doJSON(t, s.Handler(), http.MethodPatch, "/api/hosts/1/containers/web",
		containerPolicyBody{UpdateEnabled: &off})
	row := decode[store.ContainerRow](t, rec)
	if !row.CheckEnabled {
		t.Error("partial patch cleared check_enabled")
	}
	if row.UpdateEnabled {
		t.Error("update_enabled not cleared")
	}
}

func TestContainerListEmpty(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	if err := st.CreateHost(&store.Host{Name: "edge", URL: "u", Secret: "s"}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/hosts/1/containers", nil)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Errorf("body = %s, want empty array", body)
	}
}

func TestProgressNullWhenIdle(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/progress", nil)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "null" {
		t.Errorf("body = %s, want null", body)
	}
}

func TestProgressHostEntry(t *testing.T) {
	s, st, cache, _ := newTestServer(t)
	host := store.Host{Name: "edge", URL: "u", Secret: "s"}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	cache.Set(progress.HostKey(host.ID, host.Name), progress.Entry{
		Status:   progress.StatusDone,
		Counters: progress.Counters{Updated: 2},
	})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/progress/host/1", nil)
	entry := decode[progress.Entry](t, rec)
	if entry.Status != progress.StatusDone || entry.Updated != 2 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestProgressGroupEntry(t *testing.T) {
	s, st, cache, _ := newTestServer(t)
	host := store.Host{Name: "edge", URL: "u", Secret: "s"}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	key := progress.GroupKey(progress.HostKey(host.ID, host.Name), "proj:")
	cache.Set(key, progress.Entry{Status: progress.StatusChecking})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/progress/host/1/group/proj:", nil)
	entry := decode[progress.Entry](t, rec)
	if entry.Status != progress.StatusChecking {
		t.Errorf("entry = %+v", entry)
	}
}

func TestCheckAllConflictWhileRunning(t *testing.T) {
	s, _, cache, _ := newTestServer(t)
	cache.Set(progress.AllKey, progress.Entry{Status: progress.StatusChecking})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/check/all", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCheckAllStarts(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/check/all?update=true", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckHostConflictWhileRunning(t *testing.T) {
	s, st, cache, _ := newTestServer(t)
	host := store.Host{Name: "edge", URL: "u", Secret: "s", Enabled: true}
	if err := st.CreateHost(&host); err != nil {
		t.Fatal(err)
	}
	cache.Set(progress.HostKey(host.ID, host.Name), progress.Entry{Status: progress.StatusUpdating})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/check/host/1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCheckHostMissing(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/check/host/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
