// Package pdfemit writes page rasters into a PDF document, one page per
// raster, each page exactly as large as its raster (one pixel per point).
//
// Output is all or nothing: pages are encoded first, the document is
// assembled into a temporary file beside the target and renamed over it
// only when every page succeeded.
package pdfemit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrPageRender is returned when a page cannot be drawn. Nothing is
	// written in that case.
	ErrPageRender = errors.New("pdfemit: page render failed")
	// ErrNoPages is returned for an empty raster list.
	ErrNoPages = errors.New("pdfemit: no pages to write")
)

var configOnce sync.Once

// NewConfiguration returns a pdfcpu configuration that does not touch the
// user's pdfcpu config directory.
func NewConfiguration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// Options configures an Emitter.
type Options struct {
	// Logger for progress messages.
	Logger *slog.Logger
}

// Emitter assembles PDF documents from rasters.
type Emitter struct {
	logger *slog.Logger
}

// New creates an Emitter.
func New(opts Options) *Emitter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Emitter{logger: opts.Logger}
}

// Emit writes the document to path. On any failure path is left as it
// was before the call. A new file gets mode 0644; a replaced file keeps its
// permissions.
func (e *Emitter) Emit(ctx context.Context, rasters []*image.RGBA, path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("pdfemit: create output: %w", err)
	}
	tmpName := tmp.Name()

	err = tmp.Chmod(outputMode(path))
	if err != nil {
		err = fmt.Errorf("pdfemit: chmod output: %w", err)
	} else {
		err = e.Write(ctx, rasters, tmp)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("pdfemit: close output: %w", cerr)
	}
	if err == nil {
		if rerr := os.Rename(tmpName, path); rerr != nil {
			err = fmt.Errorf("pdfemit: rename output: %w", rerr)
		}
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	e.logger.Info("pdf written", "path", path, "pages", len(rasters))
	return nil
}

func outputMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return 0o644
}

// Write assembles the document and writes it to w. Nothing is written to w
// unless every page was encoded.
func (e *Emitter) Write(ctx context.Context, rasters []*image.RGBA, w io.Writer) error {
	if len(rasters) == 0 {
		return ErrNoPages
	}

	pages := make([]io.Reader, len(rasters))
	for i, r := range rasters {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := encodePage(r)
		if err != nil {
			return fmt.Errorf("%w: page %d: %v", ErrPageRender, i+1, err)
		}
		pages[i] = bytes.NewReader(data)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var doc bytes.Buffer
	if err := api.ImportImages(nil, &doc, pages, imp, NewConfiguration()); err != nil {
		return fmt.Errorf("%w: %v", ErrPageRender, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := doc.WriteTo(w)
	if err != nil {
		return fmt.Errorf("pdfemit: write output: %w", err)
	}

	e.logger.Debug("pdf assembled", "pages", len(rasters), "bytes", n)
	return nil
}

// encodePage encodes one raster losslessly.
func encodePage(r *image.RGBA) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil raster")
	}
	if b := r.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty raster %dx%d", b.Dx(), b.Dy())
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
