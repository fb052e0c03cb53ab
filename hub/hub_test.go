package hub

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tidywatch/config"
)

func hubConfigFor(t *testing.T, server *httptest.Server, attemptLimit int) config.HubConfig {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	host, port, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("splitting host/port: %v", err)
	}
	return config.HubConfig{
		Host:                   host,
		Port:                   port,
		Protocol:               "http",
		AuthPath:               "/gateway/auth/agent",
		DisconnectPath:         "/gateway/auth/agent/{agent_id}/disconnect",
		ConnectionAttemptLimit: attemptLimit,
		RetryInitialSeconds:    5,
	}
}

func newFakeSleepClient(cfg config.HubConfig) (*Client, *[]time.Duration) {
	client := NewClient(cfg)
	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return client, &waits
}

func TestRunConnectsAfterBackoff(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agent_id":"agent-42"}`))
	}))
	defer server.Close()

	client, waits := newFakeSleepClient(hubConfigFor(t, server, 0))
	client.Run(context.Background())

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 backoff waits, got %v", *waits)
	}
	if (*waits)[0] != 5*time.Second || (*waits)[1] != 10*time.Second {
		t.Fatalf("backoff must double: got %v", *waits)
	}

	status := client.Status()
	if status.State != Connected {
		t.Fatalf("expected Connected, got %v", status.State)
	}
	if status.AgentID != "agent-42" {
		t.Fatalf("expected agent id from hub, got %q", status.AgentID)
	}
}

func TestRunGivesUpAtAttemptLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer server.Close()

	client, waits := newFakeSleepClient(hubConfigFor(t, server, 4))
	client.Run(context.Background())

	if attempts != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", attempts)
	}
	// No wait after the final attempt.
	if len(*waits) != 3 {
		t.Fatalf("expected 3 waits, got %v", *waits)
	}
	if client.Status().State != Disconnected {
		t.Fatalf("expected Disconnected after giving up, got %v", client.Status().State)
	}
}

func TestRunRejectsResponseWithoutAgentID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newFakeSleepClient(hubConfigFor(t, server, 1))
	client.Run(context.Background())

	if client.Status().State != Disconnected {
		t.Fatal("a response without an agent id is a connection failure")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(hubConfigFor(t, server, 0))
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop on cancellation")
	}
	if client.Status().State != Disconnected {
		t.Fatalf("expected Disconnected, got %v", client.Status().State)
	}
}

func TestDisconnectNotifiesHub(t *testing.T) {
	disconnected := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gateway/auth/agent" {
			w.Write([]byte(`{"agent_id":"agent-9"}`))
			return
		}
		disconnected <- r.URL.Path
	}))
	defer server.Close()

	client, _ := newFakeSleepClient(hubConfigFor(t, server, 0))
	client.Run(context.Background())
	if client.Status().State != Connected {
		t.Fatal("expected Connected before disconnect")
	}

	client.Disconnect(context.Background())

	select {
	case path := <-disconnected:
		if path != "/gateway/auth/agent/agent-9/disconnect" {
			t.Fatalf("unexpected disconnect path %q", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub never saw the disconnect call")
	}
	if client.Status().State != Disconnected {
		t.Fatalf("expected Disconnected after disconnect, got %v", client.Status().State)
	}
}

func TestDisconnectIsNoopWhenNotConnected(t *testing.T) {
	client := NewClient(config.HubConfig{Protocol: "http", Host: "localhost", Port: "1"})
	// Must not attempt any network call.
	client.Disconnect(context.Background())
	if client.Status().State != Disconnected {
		t.Fatal("expected state to stay Disconnected")
	}
}
