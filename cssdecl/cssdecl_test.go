package cssdecl

import (
	"errors"
	"testing"
)

func TestParse_Properties(t *testing.T) {
	b := Parse(" width: 238px; HEIGHT:168px ;; color : red ")

	for prop, want := range map[string]string{"width": "238px", "height": "168px", "color": "red"} {
		d, ok := b[prop]
		if !ok {
			t.Errorf("%s: not declared", prop)
			continue
		}
		if d.Value != want {
			t.Errorf("%s = %q, want %q", prop, d.Value, want)
		}
	}
	if b.Has("margin") {
		t.Error("unexpected margin declaration")
	}
}

func TestParse_MalformedDeclarationDropped(t *testing.T) {
	b := Parse("12px: nope; width 10px; height: 5px")
	if len(b) != 1 || !b.Has("height") {
		t.Fatalf("expected only height, got %v", b)
	}
}

func TestParse_LastWinsUnlessImportant(t *testing.T) {
	b := Parse("width: 1px; width: 2px")
	if px, _ := b.Pixels("width"); px != 2 {
		t.Errorf("later declaration: got %d, want 2", px)
	}

	b = Parse("width: 1px !important; width: 2px")
	if px, _ := b.Pixels("width"); px != 1 {
		t.Errorf("important declaration: got %d, want 1", px)
	}
}

func TestPixels(t *testing.T) {
	tests := []struct {
		style   string
		want    int
		wantErr error
	}{
		{"width: 238px", 238, nil},
		{"width: 0", 0, nil},
		{"width: 10.6px", 11, nil},
		{"width: -4px", -4, nil},
		{"width: 12em", 0, ErrInvalidValue},
		{"width: 50%", 0, ErrInvalidValue},
		{"width: 1px 2px", 0, ErrInvalidValue},
		{"width: 1073741824px", 1 << 30, nil},
		{"width: 1073741825px", 0, ErrInvalidValue},
		{"width: 99999999999999999999px", 0, ErrInvalidValue},
		{"height: 1px", 0, ErrMissing},
	}
	for _, tt := range tests {
		got, err := Parse(tt.style).Pixels("width")
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%q: error=%v, want %v", tt.style, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("%q: got %d, want %d", tt.style, got, tt.want)
		}
	}
}

func TestPixelPair(t *testing.T) {
	tests := []struct {
		style   string
		x, y    int
		wantErr error
	}{
		{"background-position: 0px 0px", 0, 0, nil},
		{"background-position: -119px 0px", -119, 0, nil},
		{"background-position:-238px -336px;", -238, -336, nil},
		{"background-position: +5px 0", 5, 0, nil},
		{"background-position: left top", 0, 0, ErrInvalidValue},
		{"background-position: 10px", 0, 0, ErrInvalidValue},
		{"background-position: -99999999999999999999px 0px", 0, 0, ErrInvalidValue},
		{"width: 1px", 0, 0, ErrMissing},
	}
	for _, tt := range tests {
		x, y, err := Parse(tt.style).PixelPair("background-position")
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%q: error=%v, want %v", tt.style, err, tt.wantErr)
			continue
		}
		if err == nil && (x != tt.x || y != tt.y) {
			t.Errorf("%q: got (%d,%d), want (%d,%d)", tt.style, x, y, tt.x, tt.y)
		}
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		style string
		want  string
	}{
		{`background-image: url(https://cdn.example/img?fileName=a.png)`, "https://cdn.example/img?fileName=a.png"},
		{`background-image: url("https://cdn.example/img?fileName=b.png")`, "https://cdn.example/img?fileName=b.png"},
		{`background-image: url('c.png')`, "c.png"},
		{`background-image: URL( d.png )`, "d.png"},
	}
	for _, tt := range tests {
		got, err := Parse(tt.style).URL("background-image")
		if err != nil {
			t.Errorf("%q: %v", tt.style, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.style, got, tt.want)
		}
	}
}

func TestURL_Missing(t *testing.T) {
	if _, err := Parse("background-image: none").URL("background-image"); !errors.Is(err, ErrMissing) {
		t.Errorf("none: got %v, want ErrMissing", err)
	}
	if _, err := Parse("color: red").URL("background-image"); !errors.Is(err, ErrMissing) {
		t.Errorf("absent: got %v, want ErrMissing", err)
	}
}

func TestLengths_Shorthand(t *testing.T) {
	b := Parse(`background: url("s.png") no-repeat -119px -168px`)
	got, err := b.Lengths("background")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != -119 || got[1] != -168 {
		t.Fatalf("Lengths = %v, want [-119 -168]", got)
	}
	u, err := b.URL("background")
	if err != nil || u != "s.png" {
		t.Fatalf("URL = %q, %v", u, err)
	}
}

func TestLengths_OutOfRange(t *testing.T) {
	b := Parse(`background: url("s.png") -99999999999999999999px -5px -6px`)
	if _, err := b.Lengths("background"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("got %v, want ErrInvalidValue", err)
	}
}
