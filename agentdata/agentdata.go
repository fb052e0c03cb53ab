// Package agentdata describes the running agent for status queries.
package agentdata

import (
	"os"

	"github.com/shirou/gopsutil/v4/host"

	"tidywatch/config"
	"tidywatch/logger"
)

type AgentVersion struct {
	Latest  string `json:"latest_version"`
	Minimal string `json:"minimal_version"`
}

type Snapshot struct {
	AgentVersion       AgentVersion `json:"agent_version"`
	MachineName        string       `json:"machine_name"`
	ProcessID          int          `json:"process_id"`
	Uptime             uint64       `json:"uptime"`
	WatchedDirectories []string     `json:"watched_directories"`
}

type AgentData struct {
	version     config.AgentVersion
	watchedDirs []string
}

func New(version config.AgentVersion, watchedDirs []string) *AgentData {
	return &AgentData{version: version, watchedDirs: watchedDirs}
}

// Snapshot recomputes uptime on every call; the rest of the fields are
// fixed for the process lifetime.
func (a *AgentData) Snapshot() Snapshot {
	machineName, err := os.Hostname()
	if err != nil {
		logger.Warnf("Failed to read hostname: %v", err)
		machineName = "unknown"
	}

	uptime, err := host.Uptime()
	if err != nil {
		logger.Warnf("Failed to read host uptime: %v", err)
	}

	return Snapshot{
		AgentVersion: AgentVersion{
			Latest:  a.version.Latest,
			Minimal: a.version.Minimal,
		},
		MachineName:        machineName,
		ProcessID:          os.Getpid(),
		Uptime:             uptime,
		WatchedDirectories: a.watchedDirs,
	}
}
