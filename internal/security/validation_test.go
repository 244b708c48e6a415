package security

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckInbound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		max     int
		wantErr error
	}{
		{"empty", "", 0, nil},
		{"plain", "summarise ~/Documents/report.pdf", 0, nil},
		{"at limit", strings.Repeat("a", 10), 10, nil},
		{"over limit", strings.Repeat("a", 11), 10, ErrTooLarge},
		{"over default", strings.Repeat("a", MaxInboundBytes+1), 0, ErrTooLarge},
		{"invalid utf8", "caf\xe9", 0, ErrBadText},
		{"nul byte", "a\x00b", 0, ErrBadText},
		{"emoji", "ok 👍", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckInbound(tt.text, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckInbound() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckArgsDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		max     int
		wantErr error
	}{
		{"empty", "", 0, nil},
		{"flat", `{"path":"a.txt","recursive":true}`, 0, nil},
		{"nested array", `{"paths":["a","b"]}`, 2, nil},
		{"too deep", `{"a":{"b":{"c":1}}}`, 2, ErrArgsDepth},
		{"default limit", strings.Repeat("[", MaxArgsDepth+1) + strings.Repeat("]", MaxArgsDepth+1), 0, ErrArgsDepth},
		{"siblings do not add up", `{"a":{"x":1},"b":{"y":2}}`, 2, nil},
		{"broken", `{"a":`, 0, ErrArgsSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckArgsDepth([]byte(tt.raw), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckArgsDepth() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
