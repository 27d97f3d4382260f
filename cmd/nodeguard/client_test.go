package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newFakeAgent(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name == "nope" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown program \"nope\""})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"name": "ray-worker", "running": true}})
	})
	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("name") == "running" {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "already running"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	return httptest.NewServer(mux)
}

func TestAPIClient_Reachability(t *testing.T) {
	srv := newFakeAgent(t)
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/api", time.Second)
	if !c.IsReachable() {
		t.Fatal("expected reachable agent")
	}

	down := NewAPIClient("http://127.0.0.1:1/api", 200*time.Millisecond)
	if down.IsReachable() {
		t.Fatal("expected unreachable agent")
	}
}

func TestAPIClient_StatusStartStop(t *testing.T) {
	srv := newFakeAgent(t)
	defer srv.Close()
	c := NewAPIClient(srv.URL+"/api", time.Second)

	raw, err := c.Status("")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(string(raw), "ray-worker") {
		t.Fatalf("unexpected status body: %s", raw)
	}

	if _, err := c.Status("nope"); err == nil || !strings.Contains(err.Error(), "unknown program") {
		t.Fatalf("expected decoded agent error, got %v", err)
	}

	if err := c.StartProgram("ray-worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StartProgram("running"); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if err := c.StopProgram("ray-worker"); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestNewAPIClient_Defaults(t *testing.T) {
	c := NewAPIClient("", 0)
	if c.base != defaultAPIUrl {
		t.Fatalf("base default: %q", c.base)
	}
	if c.client.Timeout != 5*time.Second {
		t.Fatalf("timeout default: %v", c.client.Timeout)
	}

	c = NewAPIClient("http://x/api/", time.Second)
	if strings.HasSuffix(c.base, "/") {
		t.Fatalf("trailing slash not trimmed: %q", c.base)
	}
}
