package config

import "testing"

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	valid := []LogLevel{LogDebug, LogInfo, LogWarn, LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}

	invalid := []LogLevel{"", "trace", "INFO", "warning"}
	for _, l := range invalid {
		if l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = true, want false", l)
		}
	}
}

func TestStoreBackend_IsValid(t *testing.T) {
	t.Parallel()

	if !StorePostgres.IsValid() || !StoreMemory.IsValid() {
		t.Error("built-in backends must be valid")
	}
	for _, b := range []StoreBackend{"", "sqlite", "Postgres"} {
		if b.IsValid() {
			t.Errorf("StoreBackend(%q).IsValid() = true, want false", b)
		}
	}
}
