package core

import "testing"

func TestIsKnownStatus(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{"idle", true},
		{"claiming", true},
		{"running", true},
		{"failed", true},
		{"unrecognized", false},
		{"", false},
		{"Idle", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsKnownStatus(tt.status); got != tt.want {
				t.Errorf("IsKnownStatus(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatusesMatchValidStatuses(t *testing.T) {
	if len(Statuses) != len(ValidStatuses) {
		t.Fatalf("Statuses has %d entries, ValidStatuses has %d", len(Statuses), len(ValidStatuses))
	}
	for _, s := range Statuses {
		if !ValidStatuses[s] {
			t.Errorf("status %q missing from ValidStatuses", s)
		}
	}
}
