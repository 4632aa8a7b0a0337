package docpipe

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/mhtml2pdf/policy"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

// Config configures the conversion pipeline.
type Config struct {
	// Tile is the tile size shared by the index builder and the compositor
	// (default: 119x168).
	Tile tileindex.Geometry `json:"tile" yaml:"tile"`

	// Policy is "tolerant" (default) or "strict".
	Policy policy.Mode `json:"policy" yaml:"policy"`

	// PageClass marks page containers in the markup (default: "page").
	PageClass string `json:"page_class" yaml:"page_class"`

	// TilePrefix starts the class token of tiles (default: "pdfImg").
	TilePrefix string `json:"tile_prefix" yaml:"tile_prefix"`

	// ResourceTypes lists the archive part types kept as sprites
	// (default: application/octet-stream).
	ResourceTypes []string `json:"resource_types" yaml:"resource_types"`

	// Workers bounds sprite decoding and page compositing (default: NumCPU).
	Workers int `json:"workers" yaml:"workers"`

	// MaxFileSize is the largest archive accepted (default: 512 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxResourceSize is the largest decoded archive part (default: 64 MB).
	MaxResourceSize int64 `json:"max_resource_size" yaml:"max_resource_size"`

	// MaxPagePixels is the largest page area (width*height) rendered
	// (default: 2^27, a 512 MB canvas).
	MaxPagePixels int64 `json:"max_page_pixels" yaml:"max_page_pixels"`

	// SpillToDisk keeps decoded resources in a per-run scratch directory
	// instead of memory.
	SpillToDisk bool `json:"spill_to_disk" yaml:"spill_to_disk"`

	// ScratchDir is the parent of per-run scratch directories
	// (default: os.TempDir()).
	ScratchDir string `json:"scratch_dir,omitempty" yaml:"scratch_dir"`

	// Progress, when set, is called after each composed page.
	Progress func(done, total int) `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Tile == (tileindex.Geometry{}) {
		c.Tile = tileindex.DefaultGeometry
	}
	if c.Policy == "" {
		c.Policy = policy.Tolerant
	}
	if c.PageClass == "" {
		c.PageClass = "page"
	}
	if c.TilePrefix == "" {
		c.TilePrefix = "pdfImg"
	}
	if len(c.ResourceTypes) == 0 {
		c.ResourceTypes = []string{"application/octet-stream"}
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 512 * 1024 * 1024
	}
	if c.MaxResourceSize <= 0 {
		c.MaxResourceSize = 64 * 1024 * 1024
	}
	if c.MaxPagePixels <= 0 {
		c.MaxPagePixels = tileindex.DefaultMaxPagePixels
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if err := c.Tile.Validate(); err != nil {
		return err
	}
	if !c.Policy.Valid() {
		return fmt.Errorf("%w: %q", policy.ErrUnknownMode, c.Policy)
	}
	return nil
}

// LoadConfig reads a YAML configuration file and applies defaults to the
// fields it leaves unset.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("docpipe: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("docpipe: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
