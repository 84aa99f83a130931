package utils

import (
	"os"
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	const key = "UTIL_TEST_STRING"
	_ = os.Unsetenv(key)
	if got := EnvOrDefault(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	_ = os.Setenv(key, "value")
	if got := EnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	const key = "UTIL_TEST_INT"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultInt(key, 10); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	_ = os.Setenv(key, "5")
	if got := EnvOrDefaultInt(key, 10); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultInt(key, 7); got != 7 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestEnvOrDefaultInt64(t *testing.T) {
	const key = "UTIL_TEST_INT64"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultInt64(key, 99); got != 99 {
		t.Fatalf("expected 99, got %d", got)
	}
	_ = os.Setenv(key, "10000000000000")
	if got := EnvOrDefaultInt64(key, 99); got != 10_000_000_000_000 {
		t.Fatalf("expected 10000000000000, got %d", got)
	}
}

func TestEnvOrDefaultDurations(t *testing.T) {
	const key = "UTIL_TEST_DELAYS"
	fallback := []time.Duration{5 * time.Second}
	_ = os.Unsetenv(key)
	got := EnvOrDefaultDurations(key, fallback)
	if len(got) != 1 || got[0] != 5*time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
	_ = os.Setenv(key, "5,10,30,60,120")
	got = EnvOrDefaultDurations(key, fallback)
	want := []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("expected %d delays, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	_ = os.Setenv(key, "5,x,30")
	got = EnvOrDefaultDurations(key, fallback)
	if len(got) != 1 || got[0] != 5*time.Second {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
}
