// Package tileindex reads the page layout out of captured viewer markup.
//
// A viewer renders each document page as a container element holding a
// grid of fixed-size tiles. Every tile shows a region of a sprite sheet via
// its inline background-image and background-position styles, and names
// its grid cell in a class token "<prefix>-<column>-<row>". The Builder
// turns that markup into Page descriptors the compositor can paint.
package tileindex

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/hazyhaar/mhtml2pdf/cssdecl"
	"github.com/hazyhaar/mhtml2pdf/horosafe"
	"github.com/hazyhaar/mhtml2pdf/mhtml"
	"github.com/hazyhaar/mhtml2pdf/policy"
)

// Options configures a Builder.
type Options struct {
	// Geometry is the tile size (default: DefaultGeometry).
	Geometry Geometry
	// PageClass marks page containers (default: "page").
	PageClass string
	// TilePrefix starts the class token of tiles (default: "pdfImg").
	TilePrefix string
	// MaxPagePixels bounds width*height of a page (default:
	// DefaultMaxPagePixels).
	MaxPagePixels int64
	// Mode decides whether defective pages and tiles abort the build.
	Mode policy.Mode
	// Logger for warnings.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Geometry == (Geometry{}) {
		o.Geometry = DefaultGeometry
	}
	if o.PageClass == "" {
		o.PageClass = "page"
	}
	if o.TilePrefix == "" {
		o.TilePrefix = "pdfImg"
	}
	if o.MaxPagePixels <= 0 {
		o.MaxPagePixels = DefaultMaxPagePixels
	}
	if o.Mode == "" {
		o.Mode = policy.Tolerant
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Builder extracts page descriptors from markup. It is safe for
// concurrent use.
type Builder struct {
	opts   Options
	logger *slog.Logger
	pages  *xpath.Expr
	tiles  *xpath.Expr
}

// NewBuilder validates opts and compiles the page and tile selectors.
func NewBuilder(opts Options) (*Builder, error) {
	opts.defaults()
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := horosafe.ValidateIdentifier(opts.PageClass); err != nil {
		return nil, fmt.Errorf("tileindex: page class: %w", err)
	}
	if err := horosafe.ValidateIdentifier(opts.TilePrefix); err != nil {
		return nil, fmt.Errorf("tileindex: tile prefix: %w", err)
	}

	pages, err := xpath.Compile(fmt.Sprintf(
		`//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]`, opts.PageClass))
	if err != nil {
		return nil, fmt.Errorf("tileindex: compile page selector: %w", err)
	}
	tiles, err := xpath.Compile(fmt.Sprintf(
		`.//*[contains(concat(' ', normalize-space(@class)), ' %s-')]`, opts.TilePrefix))
	if err != nil {
		return nil, fmt.Errorf("tileindex: compile tile selector: %w", err)
	}

	return &Builder{opts: opts, logger: opts.Logger, pages: pages, tiles: tiles}, nil
}

// Geometry returns the tile size the builder was configured with.
func (b *Builder) Geometry() Geometry {
	return b.opts.Geometry
}

// BuildHTML parses markup from r, decoding it to UTF-8 according to
// contentType (a Content-Type header value, may be empty), then calls Build.
func (b *Builder) BuildHTML(r io.Reader, contentType string) ([]Page, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("tileindex: charset: %w", err)
	}
	doc, err := html.Parse(utf8)
	if err != nil {
		return nil, fmt.Errorf("tileindex: parse html: %w", err)
	}
	return b.Build(doc)
}

// Build returns one Page per page container in document order. Pages and
// tiles keep document order. Defects are reported through the builder's
// policy mode.
func (b *Builder) Build(doc *html.Node) ([]Page, error) {
	containers := htmlquery.QuerySelectorAll(doc, b.pages)
	pages := make([]Page, 0, len(containers))

	for i, n := range containers {
		page, err := b.page(i, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	b.logger.Debug("page index built", "pages", len(pages))
	return pages, nil
}

func (b *Builder) page(index int, n *html.Node) (Page, error) {
	style := cssdecl.Parse(htmlquery.SelectAttr(n, "style"))
	page := Page{Index: index}

	var err error
	if page.Width, err = b.dimension(index, style, "width"); err != nil {
		return Page{}, err
	}
	if page.Height, err = b.dimension(index, style, "height"); err != nil {
		return Page{}, err
	}
	if area := int64(page.Width) * int64(page.Height); area > b.opts.MaxPagePixels {
		return Page{}, fmt.Errorf("%w: page %d: %dx%d exceeds %d pixels",
			ErrPageTooLarge, index+1, page.Width, page.Height, b.opts.MaxPagePixels)
	}

	bounds := page.Bounds()
	for _, tn := range htmlquery.QuerySelectorAll(n, b.tiles) {
		class := htmlquery.SelectAttr(tn, "class")
		t, err := b.tile(tn, class)
		if err != nil {
			if err := b.opts.Mode.Recover(b.logger, err, "page", index+1, "tile", class); err != nil {
				return Page{}, fmt.Errorf("page %d: %w", index+1, err)
			}
			continue
		}
		if !b.opts.Geometry.Cell(t.Column, t.Row).In(bounds) {
			b.logger.Debug("tile extends past page bounds",
				"page", index+1, "column", t.Column, "row", t.Row)
		}
		page.Tiles = append(page.Tiles, t)
	}
	return page, nil
}

// dimension reads a page size. A missing or unreadable value becomes 0
// unless the mode is strict.
func (b *Builder) dimension(index int, style cssdecl.Block, prop string) (int, error) {
	v, err := style.Pixels(prop)
	if err == nil && v < 0 {
		err = fmt.Errorf("%w: %s: negative length %d", cssdecl.ErrInvalidValue, prop, v)
	}
	if err == nil {
		return v, nil
	}
	err = fmt.Errorf("%w: page %d: %v", ErrMissingDimension, index+1, err)
	if err := b.opts.Mode.Recover(b.logger, err, "page", index+1, "property", prop); err != nil {
		return 0, err
	}
	return 0, nil
}

// tile reads one tile element. class is its class attribute.
func (b *Builder) tile(n *html.Node, class string) (Placement, error) {
	col, row, err := b.coordinates(class)
	if err != nil {
		return Placement{}, err
	}
	style := cssdecl.Parse(htmlquery.SelectAttr(n, "style"))

	ref, err := style.URL("background-image")
	if errors.Is(err, cssdecl.ErrMissing) {
		ref, err = style.URL("background")
	}
	if err != nil {
		return Placement{}, fmt.Errorf("%w: %v", ErrMissingBackground, err)
	}
	id, ok := mhtml.ResourceID(ref)
	if !ok {
		return Placement{}, fmt.Errorf("%w: url %q has no fileName", ErrMissingBackground, ref)
	}

	x, y, err := position(style)
	if err != nil {
		return Placement{}, fmt.Errorf("%w: %v", ErrMalformedTile, err)
	}

	return Placement{
		Column:     col,
		Row:        row,
		ResourceID: id,
		CropX:      abs(x),
		CropY:      abs(y),
	}, nil
}

// coordinates finds the "<prefix>-<col>-<row>" token in class. The cell
// origin must stay within cssdecl.MaxLength.
func (b *Builder) coordinates(class string) (col, row int, err error) {
	prefix := b.opts.TilePrefix + "-"
	for _, tok := range strings.Fields(class) {
		rest, ok := strings.CutPrefix(tok, prefix)
		if !ok {
			continue
		}
		fields := strings.Split(rest, "-")
		if len(fields) < 2 {
			return 0, 0, fmt.Errorf("%w: class token %q has no column-row pair", ErrMalformedTile, tok)
		}
		c, errC := strconv.Atoi(fields[0])
		r, errR := strconv.Atoi(fields[1])
		if errC != nil || errR != nil || c < 0 || r < 0 {
			return 0, 0, fmt.Errorf("%w: class token %q has no column-row pair", ErrMalformedTile, tok)
		}
		g := b.opts.Geometry
		if c > cssdecl.MaxLength/g.Width || r > cssdecl.MaxLength/g.Height {
			return 0, 0, fmt.Errorf("%w: class token %q: cell out of range", ErrMalformedTile, tok)
		}
		return c, r, nil
	}
	return 0, 0, fmt.Errorf("%w: no %s token in class %q", ErrMalformedTile, prefix, class)
}

// position returns the declared background offset. Without any declared
// position the CSS initial value 0 0 applies.
func position(style cssdecl.Block) (x, y int, err error) {
	if style.Has("background-position") {
		return style.PixelPair("background-position")
	}
	if !style.Has("background") {
		return 0, 0, nil
	}
	lengths, err := style.Lengths("background")
	if err != nil {
		return 0, 0, err
	}
	switch len(lengths) {
	case 0:
		return 0, 0, nil
	case 1:
		return 0, 0, fmt.Errorf("%w: background: single offset", cssdecl.ErrInvalidValue)
	default:
		return lengths[0], lengths[1], nil
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
