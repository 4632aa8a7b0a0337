package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/mhtml2pdf/mhtml"
)

// Opener gives access to resource payloads by identifier. *mhtml.Archive
// implements it.
type Opener interface {
	Open(id string) (io.ReadCloser, error)
}

// SpriteSet maps resource identifiers to decoded sprite sheets.
type SpriteSet map[string]*image.RGBA

// DecodeSprite decodes a PNG, JPEG, GIF, WebP, BMP or TIFF image and
// returns it as RGBA anchored at the origin.
func DecodeSprite(r io.Reader) (*image.RGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeSprite, err)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

// LoadSprites decodes the resources named by ids. Identifiers the source
// does not have are left out; the tiles that use them are reported by
// Compose. A payload that does not decode is reported through the policy
// mode and left out too.
func (c *Compositor) LoadSprites(ctx context.Context, src Opener, ids []string) (SpriteSet, error) {
	var (
		mu  sync.Mutex
		set = make(SpriteSet, len(ids))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := c.loadSprite(src, id)
			if errors.Is(err, mhtml.ErrResourceNotFound) {
				return nil
			}
			if err != nil {
				return c.opts.Mode.Recover(c.logger, err, "resource", id)
			}
			mu.Lock()
			set[id] = img
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("sprites decoded", "requested", len(ids), "decoded", len(set))
	return set, nil
}

func (c *Compositor) loadSprite(src Opener, id string) (*image.RGBA, error) {
	rc, err := src.Open(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, err := DecodeSprite(rc)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", id, err)
	}
	return img, nil
}
