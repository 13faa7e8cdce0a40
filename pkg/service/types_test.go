package service

import (
	"testing"
	"time"

	"github.com/sensorwatch/livesync/pkg/event"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backoff.Initial != time.Second || cfg.Backoff.Max != 30*time.Second {
		t.Errorf("Backoff: got %v..%v, want 1s..30s", cfg.Backoff.Initial, cfg.Backoff.Max)
	}
	if cfg.AnalyticsRefresh != 5*time.Minute {
		t.Errorf("AnalyticsRefresh: got %v, want 5m", cfg.AnalyticsRefresh)
	}
	want := []event.Domain{event.DomainAlerts, event.DomainDevices}
	if len(cfg.ResyncDomains) != 2 || cfg.ResyncDomains[0] != want[0] || cfg.ResyncDomains[1] != want[1] {
		t.Errorf("ResyncDomains: got %v, want %v", cfg.ResyncDomains, want)
	}
}

func TestServiceStateString(t *testing.T) {
	tests := []struct {
		state ServiceState
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateRunning, "RUNNING"},
		{StateStopped, "STOPPED"},
		{ServiceState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
