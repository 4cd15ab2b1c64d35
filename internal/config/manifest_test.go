package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/horus-robotics/horus/internal/node"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeManifest(t, `
nodes:
  - name: producer
`)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Scheduler.Name != "horus" {
		t.Fatalf("expected default scheduler name, got %q", m.Scheduler.Name)
	}
	if m.Scheduler.TargetHz != 60 {
		t.Fatalf("expected default target_hz 60, got %v", m.Scheduler.TargetHz)
	}
	if m.Telemetry.RingSize != 8192 {
		t.Fatalf("expected default ring_size 8192, got %d", m.Telemetry.RingSize)
	}
	if m.Dashboard.Listen != "127.0.0.1:8090" {
		t.Fatalf("expected default dashboard listen address, got %q", m.Dashboard.Listen)
	}
}

func TestLoadParsesNodePriorities(t *testing.T) {
	path := writeManifest(t, `
nodes:
  - name: producer
    priority: critical
    logging: true
  - name: consumer
    priority: low
`)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(m.Nodes))
	}
	p, err := m.Nodes[0].ParsePriority()
	if err != nil || p != node.Critical {
		t.Fatalf("expected producer priority critical, got %v (err=%v)", p, err)
	}
	if !m.Nodes[0].Logging {
		t.Fatalf("expected producer logging enabled")
	}

	p, err = m.Nodes[1].ParsePriority()
	if err != nil || p != node.Low {
		t.Fatalf("expected consumer priority low, got %v (err=%v)", p, err)
	}
}

func TestLoadRejectsUnknownPriority(t *testing.T) {
	path := writeManifest(t, `
nodes:
  - name: bogus
    priority: urgent
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown priority name")
	}
}

func TestLoadRejectsUnnamedNode(t *testing.T) {
	path := writeManifest(t, `
nodes:
  - priority: normal
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a node with no name")
	}
}
