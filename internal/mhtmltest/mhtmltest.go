// Package mhtmltest builds synthetic web archives, sprite sheets and
// tiled page markup for tests.
package mhtmltest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"testing"
)

// Boundary is the outer multipart boundary used by Archive.
const Boundary = "----MultipartBoundary--mhtmltest----"

// Part is one MIME part of a synthetic archive.
type Part struct {
	ContentType string
	Location    string
	// Encoding is the Content-Transfer-Encoding. Empty means base64 for
	// binary parts and quoted-printable for text/html.
	Encoding string
	Body     []byte
	// Raw, when set, is written verbatim instead of encoding Body.
	Raw string
}

// HTMLPart returns a quoted-printable text/html part.
func HTMLPart(markup string) Part {
	return Part{
		ContentType: "text/html; charset=utf-8",
		Location:    "https://viewer.example/doc",
		Encoding:    "quoted-printable",
		Body:        []byte(markup),
	}
}

// ResourcePart returns a base64 application/octet-stream part whose
// Content-Location carries fileName=id.
func ResourcePart(id string, data []byte) Part {
	return Part{
		ContentType: "application/octet-stream",
		Location:    "https://viewer.example/getImage?page=1&fileName=" + id,
		Encoding:    "base64",
		Body:        data,
	}
}

// Archive assembles parts into a multipart/related message.
func Archive(t testing.TB, parts ...Part) []byte {
	t.Helper()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: <Saved by Blink>\r\n")
	fmt.Fprintf(&buf, "Snapshot-Content-Location: https://viewer.example/doc\r\n")
	fmt.Fprintf(&buf, "Subject: synthetic archive\r\n")
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/related;\r\n\ttype=\"text/html\";\r\n\tboundary=\"%s\"\r\n\r\n", Boundary)

	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(Boundary); err != nil {
		t.Fatalf("set boundary: %v", err)
	}
	for _, p := range parts {
		writePart(t, mw, p)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes()
}

func writePart(t testing.TB, mw *multipart.Writer, p Part) {
	t.Helper()

	enc := p.Encoding
	if enc == "" {
		enc = "base64"
		if strings.HasPrefix(p.ContentType, "text/html") {
			enc = "quoted-printable"
		}
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", p.ContentType)
	h.Set("Content-Transfer-Encoding", enc)
	if p.Location != "" {
		h.Set("Content-Location", p.Location)
	}
	w, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}

	if p.Raw != "" {
		if _, err := w.Write([]byte(p.Raw)); err != nil {
			t.Fatalf("write raw part: %v", err)
		}
		return
	}

	switch enc {
	case "base64":
		_, err = w.Write([]byte(wrap(base64.StdEncoding.EncodeToString(p.Body), 76)))
	case "quoted-printable":
		qw := quotedprintable.NewWriter(w)
		if _, err = qw.Write(p.Body); err == nil {
			err = qw.Close()
		}
	default:
		_, err = w.Write(p.Body)
	}
	if err != nil {
		t.Fatalf("write part body: %v", err)
	}
}

func wrap(s string, n int) string {
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteString("\r\n")
		s = s[n:]
	}
	b.WriteString(s)
	return b.String()
}

// SpriteColor is the colour of pixel (x, y) in a Sprite sheet.
func SpriteColor(x, y int) color.RGBA {
	return color.RGBA{R: uint8(x), G: uint8(y), B: uint8((x + y) / 2), A: 255}
}

// Sprite returns a w×h opaque sheet whose pixels follow SpriteColor.
func Sprite(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, SpriteColor(x, y))
		}
	}
	return img
}

// PNG encodes img.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// Tile describes one tile element of a Page.
type Tile struct {
	Column, Row int
	Resource    string
	X, Y        int
	// Style, when set, replaces the generated inline style.
	Style string
}

// Page describes one page container.
type Page struct {
	Width, Height int
	// Style, when set, replaces the generated width/height style.
	Style string
	Tiles []Tile
}

// Document renders pages as viewer markup: page containers classed
// "page" holding tile elements classed "pdfImg-<col>-<row>".
func Document(pages ...Page) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>viewer</title></head><body>\n<div id=\"viewer\">\n")
	for i, p := range pages {
		style := p.Style
		if style == "" {
			style = fmt.Sprintf("width:%dpx;height:%dpx", p.Width, p.Height)
		}
		fmt.Fprintf(&b, "<div class=\"page\" data-page=\"%d\" style=\"%s\">\n", i+1, style)
		for _, tl := range p.Tiles {
			ts := tl.Style
			if ts == "" {
				ts = fmt.Sprintf("background-image: url(&quot;https://viewer.example/getImage?fileName=%s&quot;); background-position: %dpx %dpx;",
					tl.Resource, -tl.X, -tl.Y)
			}
			fmt.Fprintf(&b, "  <div class=\"pdfImg pdfImg-%d-%d\" style=\"%s\"></div>\n", tl.Column, tl.Row, ts)
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</div>\n</body></html>\n")
	return b.String()
}
