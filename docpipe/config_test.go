package docpipe

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hazyhaar/mhtml2pdf/policy"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.Tile != tileindex.DefaultGeometry {
		t.Errorf("tile = %+v", cfg.Tile)
	}
	if cfg.Policy != policy.Tolerant || cfg.PageClass != "page" || cfg.TilePrefix != "pdfImg" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.ResourceTypes) != 1 || cfg.ResourceTypes[0] != "application/octet-stream" {
		t.Errorf("resource types = %v", cfg.ResourceTypes)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.MaxFileSize != 512<<20 || cfg.MaxResourceSize != 64<<20 {
		t.Errorf("limits = %d, %d", cfg.MaxFileSize, cfg.MaxResourceSize)
	}
	if cfg.MaxPagePixels != tileindex.DefaultMaxPagePixels {
		t.Errorf("max page pixels = %d", cfg.MaxPagePixels)
	}
	if cfg.Logger == nil {
		t.Error("logger not defaulted")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	yaml := `tile:
  width: 100
  height: 150
policy: strict
page_class: sheet
resource_types:
  - application/octet-stream
  - image/*
workers: 3
max_page_pixels: 1000000
spill_to_disk: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tile != (tileindex.Geometry{Width: 100, Height: 150}) {
		t.Errorf("tile = %+v", cfg.Tile)
	}
	if cfg.Policy != policy.Strict || cfg.PageClass != "sheet" || cfg.Workers != 3 || !cfg.SpillToDisk {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxPagePixels != 1000000 {
		t.Errorf("max page pixels = %d", cfg.MaxPagePixels)
	}
	if cfg.TilePrefix != "pdfImg" {
		t.Errorf("tile prefix not defaulted: %q", cfg.TilePrefix)
	}
	if len(cfg.ResourceTypes) != 2 || cfg.ResourceTypes[1] != "image/*" {
		t.Errorf("resource types = %v", cfg.ResourceTypes)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("policy: lenient\n"), 0o644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown policy")
	}
}
