package ratelimit

import (
	"testing"
	"time"
)

func TestFormatKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keyType KeyType
		value   string
		want    string
	}{
		{KeyTypeConnection, "c-1", "ratelimit:conn:c-1"},
		{KeyTypeAddress, "10.0.0.1", "ratelimit:addr:10.0.0.1"},
	}
	for _, tt := range tests {
		if got := FormatKey(tt.keyType, tt.value); got != tt.want {
			t.Errorf("FormatKey(%q, %q) = %q, want %q", tt.keyType, tt.value, got, tt.want)
		}
	}
}

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{}, false},
		{Config{Rate: 10}, false},
		{Config{Period: time.Minute}, false},
		{Config{Rate: 10, Period: time.Minute}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Enabled(); got != tt.want {
			t.Errorf("%+v.Enabled() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
