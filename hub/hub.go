// Package hub maintains the agent's registration with the remote
// coordinator. Connection state is owned by the client's own goroutine;
// nothing else transitions it.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"tidywatch/config"
	"tidywatch/logger"
	"tidywatch/version"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is a point-in-time view of the registration state machine.
// Attempt is meaningful while Connecting, AgentID once Connected.
type Status struct {
	State   State
	Attempt int
	AgentID string
}

type registration struct {
	MachineName string `json:"machine_name"`
	Version     string `json:"version"`
}

type registrationResponse struct {
	AgentID string `json:"agent_id"`
}

type Client struct {
	cfg        config.HubConfig
	httpClient *http.Client

	// sleep is replaced in tests to observe backoff timing.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
}

func NewClient(cfg config.HubConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sleep:      sleepCtx,
	}
}

// Run drives the connect/retry loop: register, and on failure wait with the
// timeout doubling each attempt, up to the configured attempt limit. The
// loop ends permanently on the first success. Exhausting the limit is
// reported but never fatal to the rest of the agent.
func (c *Client) Run(ctx context.Context) {
	timeout := time.Duration(c.cfg.RetryInitialSeconds) * time.Second
	limit := c.cfg.ConnectionAttemptLimit

	for attempt := 1; ; attempt++ {
		c.setStatus(Status{State: Connecting, Attempt: attempt})

		agentID, err := c.register(ctx)
		if err == nil {
			c.setStatus(Status{State: Connected, AgentID: agentID})
			logger.Infof("Registered with hub as agent %s", agentID)
			return
		}
		if ctx.Err() != nil {
			c.setStatus(Status{State: Disconnected})
			return
		}
		if limit > 0 && attempt >= limit {
			c.setStatus(Status{State: Disconnected})
			logger.Errorf("Giving up on hub registration after %d attempts: %v", attempt, err)
			return
		}

		logger.Errorf("Error connecting to the hub: %v, retrying in %s", err, timeout)
		if err := c.sleep(ctx, timeout); err != nil {
			c.setStatus(Status{State: Disconnected})
			return
		}
		timeout *= 2
	}
}

// Disconnect tells the hub the agent is going away. Best effort: only
// meaningful when Connected, and failures are logged, not returned.
func (c *Client) Disconnect(ctx context.Context) {
	status := c.Status()
	if status.State != Connected {
		return
	}

	url := c.baseURL() + expandAgentID(c.cfg.DisconnectPath, status.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		logger.Warnf("Failed to build hub disconnect request: %v", err)
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warnf("Failed to notify hub of disconnect: %v", err)
		return
	}
	resp.Body.Close()
	c.setStatus(Status{State: Disconnected})
	logger.Info("Hub notified of disconnect")
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(status Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Client) register(ctx context.Context) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	body, err := json.Marshal(registration{
		MachineName: hostname,
		Version:     version.Version,
	})
	if err != nil {
		return "", fmt.Errorf("encoding registration: %w", err)
	}

	url := c.baseURL() + c.cfg.AuthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registering with hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("hub rejected registration: %s", resp.Status)
	}

	var decoded registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding registration response: %w", err)
	}
	if decoded.AgentID == "" {
		return "", fmt.Errorf("hub returned no agent id")
	}
	return decoded.AgentID, nil
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("%s://%s:%s", c.cfg.Protocol, c.cfg.Host, c.cfg.Port)
}

func expandAgentID(path, agentID string) string {
	return strings.ReplaceAll(path, "{agent_id}", agentID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
