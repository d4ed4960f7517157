package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

var editions = [][2]string{
	{"–", "-"},
	{"Second Edition", "2nd Edition"},
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Mastering Go", "Mastering Go"},
		{"colon", "Go: The Complete Guide", "Go- The Complete Guide"},
		{"slash", "CI/CD with Jenkins", "CI-CD with Jenkins"},
		{"double space", "Learning  Python", "Learning Python"},
		{"many spaces and tabs", "Learning \t  Python", "Learning Python"},
		{"trim", "  Kubernetes Patterns  ", "Kubernetes Patterns"},
		{"zero width space", "Deep\u200BLearning", "DeepLearning"},
		{"BOM", "\uFEFFRust Cookbook", "Rust Cookbook"},
		{"non-breaking space", "Hands-On\u00A0Machine Learning", "Hands-On Machine Learning"},
		{"windows unsafe", `What? A "Book" <v2> | *draft*`, "What- A -Book- -v2- - -draft-"},
		{"backslash", `C:\Users`, "C--Users"},
		{"edition replacement", "Python Crash Course, Second Edition", "Python Crash Course, 2nd Edition"},
		{"en dash", "Go – Fast", "Go - Fast"},
		{"trailing dots", "Wait for it...", "Wait for it"},
		{"control chars", "Line\nBreak\tHere", "Line Break Here"},
		{"only dots", "..", ""},
		{"empty", "", ""},
		{"only separators", " / ", "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.input, editions); got != tt.expected {
				t.Errorf("Title(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTitleNFC(t *testing.T) {
	decomposed := "Cafe\u0301 Society" // e + combining acute
	composed := "Caf\u00e9 Society"

	if got := Title(decomposed, nil); got != composed {
		t.Errorf("Title(%q) = %q, want NFC form %q", decomposed, got, composed)
	}
}

func TestTitleInvariants(t *testing.T) {
	inputs := []string{
		"A  B:C/D",
		"  :: //  ",
		"Go\u200B:  Web / Dev  ",
		strings.Repeat("Long Title ", 40),
		strings.Repeat("é", 150),
	}

	for _, in := range inputs {
		got := Title(in, nil)
		if strings.Contains(got, "  ") {
			t.Errorf("Title(%q) = %q contains a double space", in, got)
		}
		if strings.ContainsAny(got, ":/") {
			t.Errorf("Title(%q) = %q contains ':' or '/'", in, got)
		}
		if got != strings.TrimSpace(got) {
			t.Errorf("Title(%q) = %q has surrounding whitespace", in, got)
		}
		if len(got) > MaxNameBytes {
			t.Errorf("Title(%q) is %d bytes, limit %d", in, len(got), MaxNameBytes)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Title(%q) = %q is not valid UTF-8", in, got)
		}
	}
}

func TestTitleReplacementOrder(t *testing.T) {
	// Later entries see the output of earlier ones.
	table := [][2]string{
		{"Second Edition", "2nd Edition"},
		{"2nd Edition", "2e"},
	}
	if got := Title("Go Second Edition", table); got != "Go 2e" {
		t.Errorf("got %q, want %q", got, "Go 2e")
	}
}
