// internal/writer/builder_test.go
package writer

import (
	"testing"
	"time"

	cfg "github.com/tamzrod/erv-controller/internal/config"
)

func TestBuildPlan_TimeoutPerSink(t *testing.T) {
	d := cfg.DeviceConfig{
		Name:   "hall",
		Mirror: &cfg.MirrorConfig{Endpoint: "mirror:502", UnitID: 2, TimeoutMs: 250},
		Status: &cfg.StatusConfig{UnitID: 1, Slot: 3},
	}
	plan, err := BuildPlan(d, cfg.StatusMemoryConfig{Endpoint: "status:502", TimeoutMs: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Mirror.Timeout != 250*time.Millisecond {
		t.Fatalf("mirror timeout: got %s", plan.Mirror.Timeout)
	}
	if plan.Status.Timeout != 2*time.Second {
		t.Fatalf("status timeout: got %s", plan.Status.Timeout)
	}

	got := endpointTimeouts(plan)
	if len(got) != 2 || got["mirror:502"] != 250*time.Millisecond || got["status:502"] != 2*time.Second {
		t.Fatalf("unexpected endpoint timeouts: %v", got)
	}
}

func TestBuildPlan_SharedEndpointKeepsLongerTimeout(t *testing.T) {
	d := cfg.DeviceConfig{
		Name:   "hall",
		Mirror: &cfg.MirrorConfig{Endpoint: "mem:502", TimeoutMs: 300},
		Status: &cfg.StatusConfig{UnitID: 1},
	}
	plan, err := BuildPlan(d, cfg.StatusMemoryConfig{Endpoint: "mem:502", TimeoutMs: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := endpointTimeouts(plan)
	if len(got) != 1 || got["mem:502"] != time.Second {
		t.Fatalf("unexpected endpoint timeouts: %v", got)
	}
}

func TestBuildPlan_StatusNeedsEndpoint(t *testing.T) {
	d := cfg.DeviceConfig{Name: "hall", Status: &cfg.StatusConfig{UnitID: 1}}
	if _, err := BuildPlan(d, cfg.StatusMemoryConfig{}); err == nil {
		t.Fatal("expected error for status without endpoint")
	}
}
