package docpipe

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/mhtml2pdf/internal/mhtmltest"
	"github.com/hazyhaar/mhtml2pdf/mhtml"
	"github.com/hazyhaar/mhtml2pdf/pdfemit"
	"github.com/hazyhaar/mhtml2pdf/policy"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

// scenarioArchive is one 238x168 page made of two tiles cut side by side
// from the same sprite sheet.
func scenarioArchive(t *testing.T) []byte {
	t.Helper()
	markup := mhtmltest.Document(mhtmltest.Page{
		Width: 238, Height: 168,
		Tiles: []mhtmltest.Tile{
			{Column: 0, Row: 0, Resource: "sheet.png", X: 0, Y: 0},
			{Column: 1, Row: 0, Resource: "sheet.png", X: 119, Y: 0},
		},
	})
	return mhtmltest.Archive(t,
		mhtmltest.HTMLPart(markup),
		mhtmltest.ResourcePart("sheet.png", mhtmltest.PNG(t, mhtmltest.Sprite(238, 168))),
	)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	pipe, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return pipe
}

func pdfPageDims(t *testing.T, path string) [][2]int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	dims, err := api.PageDims(bytes.NewReader(data), pdfemit.NewConfiguration())
	if err != nil {
		t.Fatalf("page dims: %v", err)
	}
	out := make([][2]int, len(dims))
	for i, d := range dims {
		out[i] = [2]int{int(math.Round(d.Width)), int(math.Round(d.Height))}
	}
	return out
}

func TestConvert_TwoTileScenario(t *testing.T) {
	input := writeFile(t, "book.mhtml", scenarioArchive(t))
	output := filepath.Join(t.TempDir(), "book.pdf")

	rep, err := newPipeline(t, Config{}).Convert(context.Background(), input, output)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rep.Pages != 1 || rep.Tiles != 2 || rep.SkippedTiles != 0 || rep.Resources != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.RunID == "" || rep.Output != output {
		t.Errorf("report = %+v", rep)
	}
	if got := pdfPageDims(t, output); len(got) != 1 || got[0] != [2]int{238, 168} {
		t.Fatalf("pdf pages = %v", got)
	}
}

func TestRender_TwoTileScenario(t *testing.T) {
	rasters, rep, err := newPipeline(t, Config{}).Render(context.Background(), scenarioArchive(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(rasters) != 1 || rep.Pages != 1 {
		t.Fatalf("rasters = %d, report = %+v", len(rasters), rep)
	}
	img := rasters[0]
	if img.Bounds() != image.Rect(0, 0, 238, 168) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	for _, pt := range []image.Point{{0, 0}, {118, 167}, {119, 0}, {200, 100}, {237, 167}} {
		if got, want := img.RGBAAt(pt.X, pt.Y), mhtmltest.SpriteColor(pt.X, pt.Y); got != want {
			t.Errorf("pixel %v = %v, want %v", pt, got, want)
		}
	}
}

func TestRender_NoBinaryParts(t *testing.T) {
	markup := mhtmltest.Document(
		mhtmltest.Page{Width: 238, Height: 168, Tiles: []mhtmltest.Tile{{Resource: "a.png"}, {Column: 1, Resource: "b.png"}}},
		mhtmltest.Page{Width: 119, Height: 336},
	)
	archive := mhtmltest.Archive(t, mhtmltest.HTMLPart(markup))

	rasters, rep, err := newPipeline(t, Config{}).Render(context.Background(), archive)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(rasters) != 2 || rep.SkippedTiles != 2 {
		t.Fatalf("rasters = %d, report = %+v", len(rasters), rep)
	}
	wantBounds := []image.Rectangle{image.Rect(0, 0, 238, 168), image.Rect(0, 0, 119, 336)}
	for i, r := range rasters {
		if r.Bounds() != wantBounds[i] {
			t.Errorf("page %d bounds = %v", i+1, r.Bounds())
		}
		for j := 3; j < len(r.Pix); j += 4 {
			if r.Pix[j] != 0 {
				t.Fatalf("page %d has an opaque pixel", i+1)
			}
		}
	}

	_, _, err = newPipeline(t, Config{Policy: policy.Strict}).Render(context.Background(), archive)
	if err == nil {
		t.Fatal("strict render succeeded with missing sprites")
	}
}

func TestRender_Idempotent(t *testing.T) {
	pipe := newPipeline(t, Config{Workers: 2})
	archive := scenarioArchive(t)

	first, _, err := pipe.Render(context.Background(), archive)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _, err := pipe.Render(context.Background(), archive)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for i := range first {
		if !bytes.Equal(first[i].Pix, second[i].Pix) {
			t.Fatalf("page %d differs between runs", i+1)
		}
	}
}

func TestConvert_PageOrder(t *testing.T) {
	var pages []mhtmltest.Page
	for i := 1; i <= 5; i++ {
		pages = append(pages, mhtmltest.Page{Width: 10 * i, Height: 20, Tiles: []mhtmltest.Tile{{Resource: "s.png"}}})
	}
	archive := mhtmltest.Archive(t,
		mhtmltest.HTMLPart(mhtmltest.Document(pages...)),
		mhtmltest.ResourcePart("s.png", mhtmltest.PNG(t, mhtmltest.Sprite(119, 168))),
	)
	input := writeFile(t, "order.mhtml", archive)
	output := filepath.Join(t.TempDir(), "order.pdf")

	if _, err := newPipeline(t, Config{Workers: 3}).Convert(context.Background(), input, output); err != nil {
		t.Fatalf("convert: %v", err)
	}
	got := pdfPageDims(t, output)
	if len(got) != 5 {
		t.Fatalf("pages = %d, want 5", len(got))
	}
	for i, d := range got {
		if d != [2]int{10 * (i + 1), 20} {
			t.Errorf("page %d = %v", i+1, d)
		}
	}
}

func TestConvert_SpillToDisk(t *testing.T) {
	scratch := t.TempDir()
	input := writeFile(t, "book.mhtml", scenarioArchive(t))
	output := filepath.Join(t.TempDir(), "book.pdf")

	rep, err := newPipeline(t, Config{SpillToDisk: true, ScratchDir: scratch}).Convert(context.Background(), input, output)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rep.SkippedTiles != 0 {
		t.Errorf("report = %+v", rep)
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not cleaned: %d entries", len(entries))
	}
}

func TestConvert_FatalErrors(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.pdf")
	pipe := newPipeline(t, Config{})

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"not mime", []byte("plain text, no headers"), mhtml.ErrMalformedArchive},
		{"no html", mhtmltest.Archive(t, mhtmltest.ResourcePart("a.png", []byte("x"))), mhtml.ErrMissingDocumentPart},
		{"zero pages", mhtmltest.Archive(t, mhtmltest.HTMLPart("<p>no pages</p>")), pdfemit.ErrNoPages},
		{"zero size page", mhtmltest.Archive(t, mhtmltest.HTMLPart(mhtmltest.Document(mhtmltest.Page{Style: "height:10px"}))), pdfemit.ErrPageRender},
		{"page too large", mhtmltest.Archive(t, mhtmltest.HTMLPart(mhtmltest.Document(mhtmltest.Page{Style: "width:100000px;height:100000px"}))), tileindex.ErrPageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeFile(t, "in.mhtml", tt.input)
			_, err := pipe.Convert(context.Background(), input, output)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
				t.Fatal("output written on failure")
			}
		})
	}
}

func TestConvert_ZeroSizePageNamed(t *testing.T) {
	markup := mhtmltest.Document(
		mhtmltest.Page{Width: 10, Height: 10},
		mhtmltest.Page{Style: "height:10px"},
	)
	input := writeFile(t, "in.mhtml", mhtmltest.Archive(t, mhtmltest.HTMLPart(markup)))

	_, err := newPipeline(t, Config{}).Convert(context.Background(), input, filepath.Join(t.TempDir(), "o.pdf"))
	if !errors.Is(err, pdfemit.ErrPageRender) {
		t.Fatalf("err = %v, want ErrPageRender", err)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("err = %v, want it to name page 2", err)
	}
}

func TestConvert_MaxPagePixels(t *testing.T) {
	input := writeFile(t, "book.mhtml", scenarioArchive(t))
	_, err := newPipeline(t, Config{MaxPagePixels: 238*168 - 1}).Convert(context.Background(), input, filepath.Join(t.TempDir(), "o.pdf"))
	if !errors.Is(err, tileindex.ErrPageTooLarge) {
		t.Fatalf("err = %v, want ErrPageTooLarge", err)
	}
	if _, err := newPipeline(t, Config{MaxPagePixels: 238 * 168}).Convert(context.Background(), input, filepath.Join(t.TempDir(), "o.pdf")); err != nil {
		t.Fatalf("page at the limit: %v", err)
	}
}

func TestConvert_FileTooLarge(t *testing.T) {
	input := writeFile(t, "big.mhtml", scenarioArchive(t))
	_, err := newPipeline(t, Config{MaxFileSize: 100}).Convert(context.Background(), input, filepath.Join(t.TempDir(), "o.pdf"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestInspect(t *testing.T) {
	input := writeFile(t, "book.mhtml", scenarioArchive(t))
	pages, err := newPipeline(t, Config{}).Inspect(context.Background(), input)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(pages) != 1 || len(pages[0].Tiles) != 2 || pages[0].Tiles[1].CropX != 119 {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Policy: "lenient"}); !errors.Is(err, policy.ErrUnknownMode) {
		t.Errorf("policy err = %v", err)
	}
	if _, err := New(Config{Tile: tileindex.Geometry{Width: -1, Height: 10}}); err == nil {
		t.Error("expected error for negative tile width")
	}
	if _, err := New(Config{PageClass: "a\"b"}); err == nil {
		t.Error("expected error for page class with quote")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, dir, name, want string
	}{
		{"/in/book.mhtml", "", "", "/in/book.pdf"},
		{"/in/book.mht", "/out", "", "/out/book.pdf"},
		{"/in/book.mhtml", "/out", "custom.pdf", "/out/custom.pdf"},
		{"book", "", "", "book.pdf"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.input, tt.dir, tt.name); got != filepath.FromSlash(tt.want) {
			t.Errorf("OutputPath(%q, %q, %q) = %q, want %q", tt.input, tt.dir, tt.name, got, tt.want)
		}
	}
}
