package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/studioflow/orchestrator/internal/agent"
	"github.com/studioflow/orchestrator/internal/engine"
	"github.com/studioflow/orchestrator/internal/event"
	"github.com/studioflow/orchestrator/internal/store"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	graph, err := engine.DefaultGraph()
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}
	registry := agent.NewRegistry()
	registry.Register(agent.NewMockAgent())

	manager, err := engine.NewManager(engine.Config{
		Graph:    graph,
		Handlers: engine.DefaultHandlers(),
		Agents:   registry,
		Reviewer: agent.NewMockReviewer(),
		Store:    store.NewMemory(),
		Bus:      event.NewBusWithKeepAlive(zap.NewNop().Sugar(), time.Minute),
		Logger:   zap.NewNop().Sugar(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	manager.Start(ctx)

	srv := httptest.NewServer(NewServer(manager, zap.NewNop().Sugar()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{"brief": "a landing page"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("no session_id in %v", body)
	}
	return id
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{"brief": ""})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty brief status = %d, want 422", resp.StatusCode)
	}
}

func TestUnknownSessionRoutes(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	for _, path := range []string{
		"/api/sessions/nope/snapshot",
		"/api/sessions/nope/outputs",
		"/api/sessions/nope/events",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}

	resp := postJSON(t, srv.URL+"/api/sessions/nope/decide", map[string]any{"action": "confirm"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("decide on unknown session status = %d, want 404", resp.StatusCode)
	}
}

func waitForPending(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/snapshot")
		if err != nil {
			t.Fatalf("GET snapshot: %v", err)
		}
		body := decodeBody(t, resp)
		if body["status"] == "awaiting_decision" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("session never reached awaiting_decision")
}

func TestDecideLifecycle(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	id := createSession(t, srv)
	waitForPending(t, srv, id)

	// An action outside confirm/revise never applies.
	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/decide", map[string]any{"action": "ship-it"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("invalid action status = %d, want 409", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/decide", map[string]any{"action": "confirm"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decide status = %d, want 200", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["applied"] != true {
		t.Fatalf("decide body = %v", body)
	}
}

func TestEventsStreamDeliversPrompt(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	id := createSession(t, srv)
	waitForPending(t, srv, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	// A consumer attaching after the prompt was published still receives
	// it via the recovery replay.
	scanner := bufio.NewScanner(resp.Body)
	sawPhase, sawPrompt := false, false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: "+string(event.KindPhaseChange)) {
			sawPhase = true
		}
		if strings.HasPrefix(line, "event: "+string(event.KindConfirmationPrompt)) {
			sawPrompt = true
			break
		}
	}
	if !sawPhase || !sawPrompt {
		t.Fatalf("replay incomplete: phase=%v prompt=%v", sawPhase, sawPrompt)
	}
}

func TestOutputsAfterCompletion(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	id := createSession(t, srv)

	// Confirm every prompt until the session completes.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/snapshot")
		if err != nil {
			t.Fatalf("GET snapshot: %v", err)
		}
		body := decodeBody(t, resp)
		switch body["status"] {
		case "complete":
			resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/outputs")
			if err != nil {
				t.Fatalf("GET outputs: %v", err)
			}
			outputs := decodeBody(t, resp)
			if _, ok := outputs["reviewing"]; !ok {
				t.Fatalf("outputs missing reviewing phase: %v", outputs)
			}
			return
		case "awaiting_decision":
			r := postJSON(t, srv.URL+"/api/sessions/"+id+"/decide", map[string]any{"action": "confirm"})
			r.Body.Close()
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s never completed", id)
}
