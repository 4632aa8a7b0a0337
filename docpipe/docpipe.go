// Package docpipe converts captured viewer archives (.mhtml) into PDF.
//
// A run decodes the archive, reads the page layout out of its markup,
// decodes the sprite sheets the layout references, paints every page and
// writes the pages, in document order, as one PDF.
//
// Usage:
//
//	pipe, err := docpipe.New(docpipe.Config{})
//	rep, err := pipe.Convert(ctx, "/path/to/book.mhtml", "/path/to/book.pdf")
//	fmt.Println(rep.Pages, "pages", rep.SkippedTiles, "tiles skipped")
package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/mhtml2pdf/compose"
	"github.com/hazyhaar/mhtml2pdf/idgen"
	"github.com/hazyhaar/mhtml2pdf/kit"
	"github.com/hazyhaar/mhtml2pdf/mhtml"
	"github.com/hazyhaar/mhtml2pdf/pdfemit"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

// ErrFileTooLarge is returned for an archive larger than Config.MaxFileSize.
var ErrFileTooLarge = errors.New("docpipe: file too large")

// Report summarises one run.
type Report struct {
	RunID        string        `json:"run_id"`
	Input        string        `json:"input,omitempty"`
	Output       string        `json:"output,omitempty"`
	Pages        int           `json:"pages"`
	Tiles        int           `json:"tiles"`
	SkippedTiles int           `json:"skipped_tiles"`
	Resources    int           `json:"resources"`
	Duration     time.Duration `json:"duration"`
}

// Pipeline is the conversion engine. It is safe for concurrent use; each
// call is an independent run.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) (*Pipeline, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, logger: cfg.Logger}
	if _, err := p.builder(p.logger); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Convert reads the archive at input and writes the PDF to output. The
// output file is only created when every page was written.
func (p *Pipeline) Convert(ctx context.Context, input, output string) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: idgen.Run(), Input: input, Output: output}
	logger := p.runLogger(ctx, rep.RunID)

	f, err := p.open(input)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	logger.Info("converting archive", "input", input, "output", output)
	rasters, err := p.render(ctx, logger, f, rep)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", input, err)
	}

	if err := pdfemit.New(pdfemit.Options{Logger: logger}).Emit(ctx, rasters, output); err != nil {
		return nil, fmt.Errorf("convert %s: %w", input, err)
	}

	rep.Duration = time.Since(start)
	logger.Info("archive converted",
		"pages", rep.Pages, "tiles", rep.Tiles, "skipped_tiles", rep.SkippedTiles,
		"duration", rep.Duration)
	return rep, nil
}

// Render paints the pages of an in-memory archive without writing a
// document. Rasters are returned in page order.
func (p *Pipeline) Render(ctx context.Context, archive []byte) ([]*image.RGBA, *Report, error) {
	start := time.Now()
	rep := &Report{RunID: idgen.Run()}
	logger := p.runLogger(ctx, rep.RunID)

	rasters, err := p.render(ctx, logger, bytes.NewReader(archive), rep)
	if err != nil {
		return nil, nil, err
	}
	rep.Duration = time.Since(start)
	return rasters, rep, nil
}

// Inspect decodes the archive at input and returns its page descriptors
// without decoding any sprite.
func (p *Pipeline) Inspect(ctx context.Context, input string) ([]tileindex.Page, error) {
	logger := p.runLogger(ctx, idgen.Run())

	f, err := p.open(input)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scratch, cleanup, err := p.scratch()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	arch, pages, err := p.index(logger, f, scratch)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", input, err)
	}
	logger.Debug("archive inspected", "input", input, "pages", len(pages), "resources", len(arch.Resources))
	return pages, nil
}

// render runs decode, index, sprite loading and compositing, filling rep.
func (p *Pipeline) render(ctx context.Context, logger *slog.Logger, src io.Reader, rep *Report) ([]*image.RGBA, error) {
	scratch, cleanup, err := p.scratch()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	arch, pages, err := p.index(logger, src, scratch)
	if err != nil {
		return nil, err
	}
	rep.Pages = len(pages)
	rep.Resources = len(arch.Resources)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	comp, err := compose.New(compose.Options{
		Geometry:      p.cfg.Tile,
		Workers:       p.cfg.Workers,
		MaxPagePixels: p.cfg.MaxPagePixels,
		Mode:          p.cfg.Policy,
		Progress:      p.cfg.Progress,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	sprites, err := comp.LoadSprites(ctx, arch, tileindex.ResourceIDs(pages))
	if err != nil {
		return nil, err
	}
	rasters, st, err := comp.ComposeAll(ctx, pages, sprites)
	if err != nil {
		return nil, err
	}
	rep.Tiles = st.Placed + st.Skipped
	rep.SkippedTiles = st.Skipped
	return rasters, nil
}

// index decodes the archive and builds its page descriptors.
func (p *Pipeline) index(logger *slog.Logger, src io.Reader, scratch string) (*mhtml.Archive, []tileindex.Page, error) {
	dec := mhtml.NewDecoder(mhtml.Options{
		ResourceTypes: p.cfg.ResourceTypes,
		MaxPartSize:   p.cfg.MaxResourceSize,
		ScratchDir:    scratch,
		Mode:          p.cfg.Policy,
		Logger:        logger,
	})
	arch, err := dec.Decode(src)
	if err != nil {
		return nil, nil, err
	}

	b, err := p.builder(logger)
	if err != nil {
		return nil, nil, err
	}
	pages, err := b.BuildHTML(bytes.NewReader(arch.HTML), arch.HTMLType)
	if err != nil {
		return nil, nil, err
	}
	return arch, pages, nil
}

func (p *Pipeline) builder(logger *slog.Logger) (*tileindex.Builder, error) {
	return tileindex.NewBuilder(tileindex.Options{
		Geometry:      p.cfg.Tile,
		PageClass:     p.cfg.PageClass,
		TilePrefix:    p.cfg.TilePrefix,
		MaxPagePixels: p.cfg.MaxPagePixels,
		Mode:          p.cfg.Policy,
		Logger:        logger,
	})
}

// open opens an archive file after checking its size.
func (p *Pipeline) open(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), p.cfg.MaxFileSize)
	}
	return os.Open(path)
}

// scratch creates the per-run directory for spilled resources. cleanup is
// always non-nil and removes the directory.
func (p *Pipeline) scratch() (dir string, cleanup func(), err error) {
	if !p.cfg.SpillToDisk {
		return "", func() {}, nil
	}
	dir, err = os.MkdirTemp(p.cfg.ScratchDir, "mhtml2pdf-")
	if err != nil {
		return "", func() {}, fmt.Errorf("docpipe: scratch dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("scratch dir not removed", "dir", dir, "error", err)
		}
	}, nil
}

func (p *Pipeline) runLogger(ctx context.Context, runID string) *slog.Logger {
	logger := p.logger.With("run_id", runID)
	if id := kit.GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}
