package domain

import "testing"

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID() error = %v", err)
		}
		if len(id) != 30 {
			t.Errorf("len(%q) = %d, want 30", id, len(id))
		}
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("generated id %q fails validation: %v", id, err)
		}
		if !IsGeneratedSessionID(id) {
			t.Errorf("IsGeneratedSessionID(%q) = false", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIsGeneratedSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"onb-01arz3ndektsv4rrffq69g5fav", true},
		{"onb-not-a-ulid", false},
		{"01arz3ndektsv4rrffq69g5fav", false},
		{"client-issued-id", false},
	}
	for _, tt := range tests {
		if got := IsGeneratedSessionID(tt.id); got != tt.want {
			t.Errorf("IsGeneratedSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
