package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if cfg.Sources.Blockchain.RequestsPerDay != 1440 {
		t.Fatalf("unexpected blockchain budget: %d", cfg.Sources.Blockchain.RequestsPerDay)
	}
	if cfg.Statistics.RegenerationInterval != 30*time.Minute {
		t.Fatalf("unexpected regeneration interval: %s", cfg.Statistics.RegenerationInterval)
	}
	if cfg.Statistics.PendingNoiseFloor != 100 {
		t.Fatalf("unexpected noise floor: %d", cfg.Statistics.PendingNoiseFloor)
	}
	if len(cfg.Statistics.HoursBack) == 0 || len(cfg.Statistics.Granularities) == 0 {
		t.Fatal("stats matrix defaults missing")
	}
}

func TestValidateRejectsBadGranularity(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Statistics.Granularities = []string{"day"}

	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "granularit") {
		t.Fatalf("expected granularity error, got %v", err)
	}
}

func TestValidateAlertingRequiresMailer(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Alerting.Enabled = true
	cfg.Alerting.Recipients = []string{"ops@example.com"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled alerting without mailgun credentials should fail validation")
	}
}
