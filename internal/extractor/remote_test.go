package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newExtractServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestRemoteExtract(t *testing.T) {
	want := [][]byte{{0x01, 0x02}, {0xFF, 0x00}}
	server := newExtractServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		encoded := make([]string, len(want))
		for i, d := range want {
			encoded[i] = base64.StdEncoding.EncodeToString(d)
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"descriptors": encoded})
	})

	remote, err := NewRemote(RemoteConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	set, err := remote.Extract(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(set) != len(want) {
		t.Fatalf("expected %d descriptors, got %d", len(want), len(set))
	}
}

func TestRemoteExtractRetriesServerErrors(t *testing.T) {
	var calls int
	server := newExtractServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"descriptors": nil})
	})

	remote, err := NewRemote(RemoteConfig{BaseURL: server.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	set, err := remote.Extract(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %d descriptors", len(set))
	}
}

func TestRemoteExtractClientErrorIsFatal(t *testing.T) {
	var calls int
	server := newExtractServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	remote, err := NewRemote(RemoteConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if _, err := remote.Extract(context.Background(), []byte("image-bytes")); err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls)
	}
}

func TestNewRemoteRequiresBaseURL(t *testing.T) {
	if _, err := NewRemote(RemoteConfig{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
