package v1

import (
	"errors"
	"testing"
	"time"
)

func Test_isBusyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"locked database", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"busy connection", errors.New("database table is busy"), true},
		{"constraint violation", errors.New("UNIQUE constraint failed: traffic_stats.page"), false},
		{"generic failure", errors.New("disk I/O error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusyError(tt.err); got != tt.expected {
				t.Errorf("isBusyError(%q) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func Test_validateRow(t *testing.T) {
	hour := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		page    string
		hour    time.Time
		wantErr bool
	}{
		{"valid row", "/pricing", hour, false},
		{"empty page", "", hour, true},
		{"page without leading slash", "pricing", hour, true},
		{"zero hour", "/pricing", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRow(tt.page, tt.hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRow(%q, %v) error = %v, wantErr %v", tt.page, tt.hour, err, tt.wantErr)
			}
		})
	}
}

func Test_validateRate(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"lower bound", 0, false},
		{"upper bound", 100, false},
		{"mid range", 42.5, false},
		{"negative", -0.1, true},
		{"above hundred", 100.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRate(tt.value, "bounceRate")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}
