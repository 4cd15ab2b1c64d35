// Package config loads the YAML run manifest: the one configuration
// surface this runtime core owns (node registration order, priorities,
// logging flags, target tick rate, telemetry ring size, and where the
// dashboard listens). It is not the project-wide launcher manifest, which
// is out of scope.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/horus-robotics/horus/internal/node"
)

// SchedulerConfig is the scheduler: block of the run manifest.
type SchedulerConfig struct {
	Name           string  `yaml:"name"`
	TargetHz       float64 `yaml:"target_hz"`
	ErrorThreshold int     `yaml:"error_threshold"`
}

// TelemetryConfig is the telemetry: block of the run manifest.
type TelemetryConfig struct {
	RingSize int `yaml:"ring_size"`
}

// NodeConfig is one entry in the nodes: list of the run manifest.
type NodeConfig struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority"`
	Logging  bool   `yaml:"logging"`
}

// ParsePriority parses this entry's priority string, defaulting to
// node.Normal when unset.
func (n NodeConfig) ParsePriority() (node.Priority, error) {
	if n.Priority == "" {
		return node.Normal, nil
	}
	return node.ParsePriority(n.Priority)
}

// DashboardConfig is the dashboard: block of the run manifest.
type DashboardConfig struct {
	Listen string `yaml:"listen"`
}

// Manifest is the full YAML run manifest shape.
type Manifest struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Nodes     []NodeConfig    `yaml:"nodes"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

func (m *Manifest) setDefaults() {
	if m.Scheduler.Name == "" {
		m.Scheduler.Name = "horus"
	}
	if m.Scheduler.TargetHz <= 0 {
		m.Scheduler.TargetHz = 60
	}
	if m.Scheduler.ErrorThreshold <= 0 {
		m.Scheduler.ErrorThreshold = 10
	}
	if m.Telemetry.RingSize <= 0 {
		m.Telemetry.RingSize = 8192
	}
	if m.Dashboard.Listen == "" {
		m.Dashboard.Listen = "127.0.0.1:8090"
	}
}

// Load reads and parses a run manifest from path, applying the same
// zero-value defaulting pattern the teacher's scheduler config loader
// uses: unmarshal first, then fill in anything left at its zero value.
func Load(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	m.setDefaults()

	for i, n := range m.Nodes {
		if n.Name == "" {
			return Manifest{}, fmt.Errorf("config: %s: node at index %d has no name", path, i)
		}
		if _, err := n.ParsePriority(); err != nil {
			return Manifest{}, fmt.Errorf("config: %s: node %q: %w", path, n.Name, err)
		}
	}

	return m, nil
}
