// Package compose paints page rasters from tile placements and decoded
// sprite sheets.
//
// Each page gets a fully transparent RGBA canvas of its declared size.
// Every tile copies a fixed-size region of its sprite into its grid cell,
// replacing whatever was there. A tile whose sprite is missing leaves its
// cell transparent and does not affect the rest of the page.
package compose

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/mhtml2pdf/policy"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

// Options configures a Compositor.
type Options struct {
	// Geometry is the tile size (default: tileindex.DefaultGeometry).
	Geometry tileindex.Geometry
	// Workers bounds page and sprite fan-out (default: runtime.NumCPU()).
	Workers int
	// MaxPagePixels bounds the canvas area of one page (default:
	// tileindex.DefaultMaxPagePixels).
	MaxPagePixels int64
	// Mode decides whether a missing or undecodable sprite aborts the run.
	Mode policy.Mode
	// Progress, when set, is called after each composed page with the
	// number of pages done so far. Calls are serialised.
	Progress func(done, total int)
	// Logger for warnings.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Geometry == (tileindex.Geometry{}) {
		o.Geometry = tileindex.DefaultGeometry
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxPagePixels <= 0 {
		o.MaxPagePixels = tileindex.DefaultMaxPagePixels
	}
	if o.Mode == "" {
		o.Mode = policy.Tolerant
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats counts tiles per outcome.
type Stats struct {
	Placed  int `json:"placed"`
	Skipped int `json:"skipped"`
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{Placed: s.Placed + o.Placed, Skipped: s.Skipped + o.Skipped}
}

// Compositor paints pages. It holds no per-page state and is safe for
// concurrent use.
type Compositor struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Compositor.
func New(opts Options) (*Compositor, error) {
	opts.defaults()
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	return &Compositor{opts: opts, logger: opts.Logger}, nil
}

// Compose paints one page. The raster always has the page's declared
// size; cells whose sprite is missing stay transparent. A page with a
// negative size or an area past MaxPagePixels is tileindex.ErrPageTooLarge
// in every mode; other errors are only returned in strict mode.
func (c *Compositor) Compose(page tileindex.Page, sprites SpriteSet) (*image.RGBA, Stats, error) {
	if page.Width < 0 || page.Height < 0 ||
		int64(page.Width)*int64(page.Height) > c.opts.MaxPagePixels {
		return nil, Stats{}, fmt.Errorf("%w: page %d: %dx%d",
			tileindex.ErrPageTooLarge, page.Index+1, page.Width, page.Height)
	}
	canvas := image.NewRGBA(page.Bounds())
	var st Stats

	for _, t := range page.Tiles {
		sprite, ok := sprites[t.ResourceID]
		if !ok {
			err := fmt.Errorf("%w: %s", ErrMissingResource, t.ResourceID)
			if err := c.opts.Mode.Recover(c.logger, err,
				"page", page.Index+1, "column", t.Column, "row", t.Row, "resource", t.ResourceID); err != nil {
				return nil, st, fmt.Errorf("page %d: %w", page.Index+1, err)
			}
			st.Skipped++
			continue
		}

		cell := c.opts.Geometry.Cell(t.Column, t.Row)
		src := t.Source(c.opts.Geometry).Min.Add(sprite.Bounds().Min)
		draw.Draw(canvas, cell, sprite, src, draw.Src)
		st.Placed++
	}
	return canvas, st, nil
}

// ComposeAll paints pages concurrently and returns rasters in page order.
func (c *Compositor) ComposeAll(ctx context.Context, pages []tileindex.Page, sprites SpriteSet) ([]*image.RGBA, Stats, error) {
	rasters := make([]*image.RGBA, len(pages))
	stats := make([]Stats, len(pages))

	var (
		mu   sync.Mutex
		done int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raster, st, err := c.Compose(page, sprites)
			if err != nil {
				return err
			}
			rasters[i], stats[i] = raster, st

			if c.opts.Progress != nil {
				mu.Lock()
				done++
				c.opts.Progress(done, len(pages))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var total Stats
	for _, st := range stats {
		total = total.Add(st)
	}
	c.logger.Debug("pages composed", "pages", len(pages), "placed", total.Placed, "skipped", total.Skipped)
	return rasters, total, nil
}
