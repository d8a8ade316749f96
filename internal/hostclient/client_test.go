package hostclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moby/moby/api/types/container"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/signing"
)

const testSecret = "s3cret"

func TestSignedRoundTrip(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		err := signing.Verify(testSecret, 10*time.Second, r.Method, r.URL.Path, body,
			r.Header.Get(signing.HeaderTimestamp), r.Header.Get(signing.HeaderSignature), time.Now())
		if err != nil {
			t.Errorf("server-side Verify() = %v", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req api.ContainerListBody
		if err := json.Unmarshal(body, &req); err != nil || !req.All {
			t.Errorf("unexpected request body %s", body)
		}
		_ = json.NewEncoder(w).Encode([]container.InspectResponse{{ID: "aaa", Name: "/web"}})
	}))
	defer srv.Close()

	c := New(srv.URL, testSecret, 5*time.Second, clock.Real{})
	got, err := c.ListContainers(context.Background(), true)
	if err != nil {
		t.Fatalf("ListContainers() = %v", err)
	}
	if gotPath != "/api/container/list" {
		t.Errorf("path = %q", gotPath)
	}
	if len(got) != 1 || got[0].ID != "aaa" {
		t.Errorf("containers = %+v", got)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"invalid signature"}`, KindUnauthorized},
		{"not found", http.StatusNotFound, `{"detail":"no such container"}`, KindNotFound},
		{"engine", http.StatusFailedDependency, `{"detail":"daemon unreachable"}`, KindEngine},
		{"agent timeout", http.StatusInternalServerError, `{"detail":"operation timed out"}`, KindTimeout},
		{"plain body", http.StatusBadGateway, "bad gateway", KindEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, testSecret, 5*time.Second, clock.Real{})
			_, err := c.InspectContainer(context.Background(), "web")
			if err == nil {
				t.Fatal("expected error")
			}
			var he *Error
			if !errors.As(err, &he) {
				t.Fatalf("error is %T, want *Error", err)
			}
			if he.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", he.Kind, tt.want)
			}
			if he.Status != tt.status {
				t.Errorf("Status = %d, want %d", he.Status, tt.status)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := New(srv.URL, testSecret, time.Second, clock.Real{})
	err := c.Health(context.Background())
	var he *Error
	if !errors.As(err, &he) || he.Kind != KindTransport {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(srv.URL, testSecret, 50*time.Millisecond, clock.Real{})
	err := c.Access(context.Background())
	if !IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestManifestQueryNotSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		// The signature must cover the bare path, not the query string.
		err := signing.Verify(testSecret, 10*time.Second, r.Method, r.URL.Path, body,
			r.Header.Get(signing.HeaderTimestamp), r.Header.Get(signing.HeaderSignature), time.Now())
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("spec_or_digest") != "app:latest" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(api.ManifestInspect{Digest: "sha256:abc"})
	}))
	defer srv.Close()

	c := New(srv.URL, testSecret, 5*time.Second, clock.Real{})
	got, err := c.InspectManifest(context.Background(), "app:latest")
	if err != nil {
		t.Fatalf("InspectManifest() = %v", err)
	}
	if got.Digest != "sha256:abc" {
		t.Errorf("digest = %q", got.Digest)
	}
}
