package tileindex

import (
	"fmt"
	"image"

	"github.com/hazyhaar/mhtml2pdf/cssdecl"
)

// Geometry is the fixed pixel size of one tile. It is a property of the
// document family, never derived from the markup.
type Geometry struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// DefaultGeometry is the tile size of the viewer this tool was written for.
var DefaultGeometry = Geometry{Width: 119, Height: 168}

// DefaultMaxPagePixels caps the area of one page canvas (512 MiB of RGBA).
const DefaultMaxPagePixels = 1 << 27

// Validate rejects non-positive tile sizes and sizes past cssdecl.MaxLength.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 || g.Width > cssdecl.MaxLength || g.Height > cssdecl.MaxLength {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	return nil
}

// Origin is the top-left pixel of grid cell (col, row).
func (g Geometry) Origin(col, row int) image.Point {
	return image.Pt(col*g.Width, row*g.Height)
}

// Cell is the pixel rectangle covered by grid cell (col, row).
func (g Geometry) Cell(col, row int) image.Rectangle {
	o := g.Origin(col, row)
	return image.Rect(o.X, o.Y, o.X+g.Width, o.Y+g.Height)
}

// Placement positions one tile: the sprite region starting at (CropX,
// CropY) is pasted into grid cell (Column, Row).
type Placement struct {
	Column     int    `json:"column"`
	Row        int    `json:"row"`
	ResourceID string `json:"resource"`
	CropX      int    `json:"crop_x"`
	CropY      int    `json:"crop_y"`
}

// Source is the sprite rectangle the tile is cut from.
func (p Placement) Source(g Geometry) image.Rectangle {
	return image.Rect(p.CropX, p.CropY, p.CropX+g.Width, p.CropY+g.Height)
}

// Page describes one output page: its declared pixel size and its tiles in
// document order.
type Page struct {
	Index  int         `json:"index"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Tiles  []Placement `json:"tiles"`
}

// Bounds is the page rectangle anchored at the origin.
func (p Page) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// ResourceIDs returns the identifiers referenced by pages, each once, in
// order of first reference.
func ResourceIDs(pages []Page) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range pages {
		for _, t := range p.Tiles {
			if !seen[t.ResourceID] {
				seen[t.ResourceID] = true
				ids = append(ids, t.ResourceID)
			}
		}
	}
	return ids
}
