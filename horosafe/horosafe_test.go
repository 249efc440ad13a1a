package horosafe

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	base := filepath.FromSlash("/tmp/scratch")
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"alice_123/essay.docx", false},
		{"essay..final.docx", false},
		{"bob/", false},
		{"../etc/passwd", true},
		{"alice/../../outside.docx", true},
		{`alice\..\..\outside.docx`, true},
		{"/etc/passwd", true},
		{"", true},
		{"a\x00b.docx", true},
		{".", true},
	}
	for _, tt := range tests {
		got, err := SafePath(base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q) error=%v, wantErr=%v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("SafePath(%q) error = %v, want ErrPathTraversal", tt.input, err)
		}
		if err == nil && !strings.HasPrefix(got, base+string(filepath.Separator)) {
			t.Errorf("SafePath(%q) = %q, not under base", tt.input, got)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"bat_0192f3a4-7b1c-7def-8123-456789abcdef", false},
		{"my.batch-1", false},
		{"", true},
		{"../etc", true},
		{"a b", true},
		{strings.Repeat("a", 257), true},
	}
	for _, tt := range tests {
		err := ValidateIdentifier(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateIdentifier(%q) error=%v, wantErr=%v", tt.id, err, tt.wantErr)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)

	got, err := LimitedReadAll(bytes.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d bytes, want 100", len(got))
	}

	if _, err := LimitedReadAll(bytes.NewReader(data), 100); err != nil {
		t.Fatalf("exact limit should pass: %v", err)
	}

	_, err = LimitedReadAll(bytes.NewReader(data), 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}
