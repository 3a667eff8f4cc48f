package security

import (
	"strings"
	"testing"
)

func TestNameSanitizer_Sanitize(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Chess Club", "Chess Club"},
		{"empty", "", ""},
		{"script removed", "Chess<script>alert(1)</script> Club", "Chess Club"},
		{"tags stripped", "<b>Chess</b> <i>Club</i>", "Chess Club"},
		{"ampersand kept", "Rock & Roll", "Rock & Roll"},
		{"whitespace collapsed", "  Chess \t\n Club  ", "Chess Club"},
		{"japanese", "将棋部", "将棋部"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameSanitizer_TruncatesLongNames(t *testing.T) {
	s := NewNameSanitizer()
	got := s.Sanitize(strings.Repeat("あ", MaxNameLength+10))
	if n := len([]rune(got)); n != MaxNameLength {
		t.Errorf("rune length = %d, want %d", n, MaxNameLength)
	}
}

func TestNameSanitizer_Idempotent(t *testing.T) {
	s := NewNameSanitizer()
	once := s.Sanitize("<p>Chess &amp; Go</p>")
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}
