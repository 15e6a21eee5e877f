package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CRM_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CRM_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 15 * time.Second
	tests := map[string]time.Duration{
		"":      def,
		"30s":   30 * time.Second,
		"2m":    2 * time.Minute,
		"45":    45 * time.Second,
		"-5s":   def,
		"0":     def,
		"later": def,
	}
	for value, want := range tests {
		t.Setenv("CRM_TEST_DURATION", value)
		if got := ParseDurationEnv("CRM_TEST_DURATION", def); got != want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := map[string]int{
		"":    16,
		"4":   4,
		" 8 ": 8,
		"0":   16,
		"-1":  16,
		"x":   16,
	}
	for value, want := range tests {
		t.Setenv("CRM_TEST_INT", value)
		if got := ParseIntEnv("CRM_TEST_INT", 16); got != want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", value, got, want)
		}
	}
}
