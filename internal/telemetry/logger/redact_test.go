package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"api_token", true},
		{"Authorization", true},
		{"dob", true},
		{"dateOfBirth", true},
		{"member_id", true},
		{"memberId", true},
		{"insurance.group-number", true},
		{"primary_diagnosis", true},
		{"medications", true},
		{"parentEmail", true},
		{"phone_number", true},
		{"data", true},
		{"payload", true},
		{"session_id", false},
		{"status", false},
		{"generation", false},
		{"error", false},
		{"remote_addr", false},
		{"metadata", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRedactString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ssn 123-45-6789 on file", "ssn ***-**-**** on file"},
		{"no numbers here", "no numbers here"},
		{"phone 555-1234", "phone 555-1234"},
	}
	for _, tt := range tests {
		if got := RedactString(tt.in); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"string phi", slog.String("dob", "2019-04-01"), redactedValue},
		{"non-string phi", slog.Any("data", map[string]any{"childInfo": "x"}), redactedValue},
		{"empty secret kept", slog.String("password", ""), ""},
		{"ssn value", slog.String("note", "id 123-45-6789"), "id ***-**-****"},
		{"normal", slog.String("status", "saved"), "saved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitive(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("redactSensitive() = %q, want %q", got.Value.String(), tt.want)
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("insurance", slog.String("member_id", "M-99"), slog.String("carrier", "Acme"))
	got := redactSensitive(a)

	attrs := got.Value.Group()
	if attrs[0].Value.String() != redactedValue {
		t.Errorf("member_id = %q", attrs[0].Value.String())
	}
	if attrs[1].Value.String() != "Acme" {
		t.Errorf("carrier = %q", attrs[1].Value.String())
	}
}

func TestNew_RedactsOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.Info("save", "session_id", "s1", "data", json.RawMessage(`{"ssn":"123-45-6789"}`), "diagnosis", "ADHD")

	out := buf.String()
	for _, leaked := range []string{"123-45-6789", "ADHD"} {
		if strings.Contains(out, leaked) {
			t.Errorf("log output leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, `"session_id":"s1"`) {
		t.Errorf("session_id missing: %s", out)
	}
}
