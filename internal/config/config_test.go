package config

import (
	"testing"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "a-long-enough-secret")
	t.Setenv("USERS_DEACTIVATION_POLICY", "")
	t.Setenv("SLA_CRITICAL_DAYS", "")
	t.Setenv("APP_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Policy.Deactivation != DeactivationKeep {
		t.Fatalf("expected keep policy, got %q", cfg.Policy.Deactivation)
	}
	if cfg.App.Addr() != cfg.App.Host+":8080" {
		t.Fatalf("unexpected addr %q", cfg.App.Addr())
	}
	if days, ok := cfg.SLA.Policy.MaxDays(domain.IssuePriorityCritical); !ok || days != 2 {
		t.Fatalf("unexpected critical SLA %v", cfg.SLA.Policy)
	}
}

func TestLoadSLAOverride(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "a-long-enough-secret")
	t.Setenv("SLA_CRITICAL_DAYS", "1")
	t.Setenv("SLA_LOW_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.SLA.Policy[domain.IssuePriorityCritical]; got != 1 {
		t.Fatalf("critical days = %d", got)
	}
	if got := cfg.SLA.Policy[domain.IssuePriorityLow]; got != 30 {
		t.Fatalf("low days = %d", got)
	}
	if got := cfg.SLA.Policy[domain.IssuePriorityMedium]; got != 7 {
		t.Fatalf("medium days should keep default, got %d", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non numeric SLA", map[string]string{"SLA_HIGH_DAYS": "three"}},
		{"negative SLA", map[string]string{"SLA_HIGH_DAYS": "-1"}},
		{"unknown deactivation policy", map[string]string{"USERS_DEACTIVATION_POLICY": "archive"}},
		{"short jwt secret", map[string]string{"AUTH_JWT_SECRET": "short"}},
		{"bad redis db", map[string]string{"REDIS_DB": "one"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "a-long-enough-secret")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDurations(t *testing.T) {
	if (AppConfig{}).RequestTimeout() != 0 {
		t.Fatal("zero seconds should disable the timeout")
	}
	if (RedisConfig{StatsTTLSecs: 5}).StatsTTL().Seconds() != 5 {
		t.Fatal("unexpected stats ttl")
	}
	if (NotificationConfig{}).Timeout().Seconds() != 5 {
		t.Fatal("notification timeout should default to 5s")
	}
}
