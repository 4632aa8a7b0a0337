package horosafe

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/tmp/scratch", "sprite_01.png", false},
		{"/tmp/scratch", "abc/def", false},
		{"/tmp/scratch", "../etc/passwd", true},
		{"/tmp/scratch", "abc/../def", true},
		{"/tmp/scratch", "abc/../../outside", true},
		{"/tmp/scratch", "", true},
		{"/tmp/scratch", "/", true},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestSafePath_StaysUnderBase(t *testing.T) {
	got, err := SafePath("/tmp/scratch", "/abs/name.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join("/tmp/scratch", "abs", "name.png")
	if got != want {
		t.Fatalf("SafePath = %q, want %q", got, want)
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("pdfImg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIdentifier("page-wrap_1.x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIdentifier("' or '1'='1"); err == nil {
		t.Fatal("expected error for quote characters")
	}
	if err := ValidateIdentifier(""); err == nil {
		t.Fatal("expected error for empty identifier")
	}
	if err := ValidateIdentifier("has spaces"); err == nil {
		t.Fatal("expected error for spaces")
	}
	long := strings.Repeat("a", MaxIdentifierLen+1)
	if err := ValidateIdentifier(long); err == nil {
		t.Fatal("expected error for long identifier")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	got, err = LimitedReadAll(strings.NewReader(data), 100)
	if err != nil || len(got) != 100 {
		t.Fatalf("exact limit: got %d bytes, err=%v", len(got), err)
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
