// Package cssdecl parses inline CSS declaration lists (the content of a
// style attribute) into a property map and extracts typed values from it:
// pixel lengths, length pairs and url() references.
//
// Tokenising is done by the gorilla/css scanner; this package only groups
// tokens into declarations and interprets values, so format quirks of the
// captured markup stay in one place.
package cssdecl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gorilla/css/scanner"
)

// MaxLength bounds the magnitude of a pixel length. Larger values are
// ErrInvalidValue, so lengths always fit an int and sums of a few of them
// cannot overflow.
const MaxLength = 1 << 30

var (
	// ErrMissing is returned when the property is not declared.
	ErrMissing = errors.New("cssdecl: property not declared")
	// ErrInvalidValue is returned when the declared value has the wrong shape.
	ErrInvalidValue = errors.New("cssdecl: invalid value")
)

// Declaration is one "property: value" pair.
type Declaration struct {
	Property  string
	Value     string // value text, whitespace collapsed, without !important
	Important bool

	tokens []valueToken
}

type valueToken struct {
	tok         *scanner.Token
	spaceBefore bool
}

// Block maps lower-cased property names to their effective declaration.
type Block map[string]Declaration

// Parse tokenises style and returns its declarations. Malformed
// declarations are dropped; a later declaration of the same property
// replaces an earlier one unless only the earlier one is !important.
func Parse(style string) Block {
	b := make(Block)
	s := scanner.New(style)

	var (
		prop      string
		seenColon bool
		bad       bool
		space     bool
		toks      []valueToken
	)
	reset := func() {
		prop, seenColon, bad, space, toks = "", false, false, false, nil
	}
	flush := func() {
		if !bad && prop != "" && seenColon && len(toks) > 0 {
			b.add(newDeclaration(prop, toks))
		}
		reset()
	}

	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			flush()
			return b
		case scanner.TokenError:
			// The scanner keeps returning the same error token.
			bad = true
			flush()
			return b
		case scanner.TokenS, scanner.TokenComment:
			space = true
			continue
		case scanner.TokenChar:
			if tok.Value == ";" {
				flush()
				continue
			}
			if tok.Value == ":" && prop != "" && !seenColon {
				seenColon = true
				space = false
				continue
			}
		}

		if !seenColon {
			if prop == "" && tok.Type == scanner.TokenIdent {
				prop = strings.ToLower(tok.Value)
			} else {
				bad = true
			}
			space = false
			continue
		}
		toks = append(toks, valueToken{tok: tok, spaceBefore: space && len(toks) > 0})
		space = false
	}
}

func newDeclaration(prop string, toks []valueToken) Declaration {
	d := Declaration{Property: prop}
	// Trailing "! important".
	if n := len(toks); n >= 2 &&
		toks[n-2].tok.Type == scanner.TokenChar && toks[n-2].tok.Value == "!" &&
		toks[n-1].tok.Type == scanner.TokenIdent && strings.EqualFold(toks[n-1].tok.Value, "important") {
		d.Important = true
		toks = toks[:n-2]
	}
	d.tokens = toks

	var sb strings.Builder
	for _, vt := range toks {
		if vt.spaceBefore {
			sb.WriteByte(' ')
		}
		sb.WriteString(vt.tok.Value)
	}
	d.Value = sb.String()
	return d
}

func (b Block) add(d Declaration) {
	if prev, ok := b[d.Property]; ok && prev.Important && !d.Important {
		return
	}
	b[d.Property] = d
}

// Has reports whether prop is declared.
func (b Block) Has(prop string) bool {
	_, ok := b[strings.ToLower(prop)]
	return ok
}

// Pixels returns the value of prop as a whole number of pixels. The value
// must be a single length ("12px", "12.4px" rounds to 12, or a unitless 0).
func (b Block) Pixels(prop string) (int, error) {
	d, err := b.lookup(prop)
	if err != nil {
		return 0, err
	}
	lengths, rest := d.lengths()
	if len(lengths) != 1 || rest > 0 {
		return 0, fmt.Errorf("%w: %s: %q is not a single pixel length", ErrInvalidValue, d.Property, d.Value)
	}
	return lengths[0], nil
}

// PixelPair returns the value of prop as exactly two pixel lengths, for
// properties such as background-position.
func (b Block) PixelPair(prop string) (x, y int, err error) {
	d, err := b.lookup(prop)
	if err != nil {
		return 0, 0, err
	}
	lengths, rest := d.lengths()
	if len(lengths) != 2 || rest > 0 {
		return 0, 0, fmt.Errorf("%w: %s: %q is not a pixel pair", ErrInvalidValue, d.Property, d.Value)
	}
	return lengths[0], lengths[1], nil
}

// Lengths returns every pixel length found in the value of prop, ignoring
// other components. Used for shorthands like background. A px length past
// MaxLength is ErrInvalidValue.
func (b Block) Lengths(prop string) ([]int, error) {
	d, err := b.lookup(prop)
	if err != nil {
		return nil, err
	}
	for _, vt := range d.tokens {
		if outOfRange(vt.tok) {
			return nil, fmt.Errorf("%w: %s: length %q out of range", ErrInvalidValue, d.Property, vt.tok.Value)
		}
	}
	lengths, _ := d.lengths()
	return lengths, nil
}

// URL returns the target of the first url() in the value of prop, with
// surrounding quotes removed.
func (b Block) URL(prop string) (string, error) {
	d, err := b.lookup(prop)
	if err != nil {
		return "", err
	}
	for i, vt := range d.tokens {
		switch vt.tok.Type {
		case scanner.TokenURI:
			return unwrapURL(vt.tok.Value), nil
		case scanner.TokenFunction:
			if !strings.EqualFold(vt.tok.Value, "url(") {
				continue
			}
			// url( whose content the scanner could not take as one token.
			var sb strings.Builder
			for _, inner := range d.tokens[i+1:] {
				if inner.tok.Type == scanner.TokenChar && inner.tok.Value == ")" {
					return unwrapURL(sb.String()), nil
				}
				sb.WriteString(inner.tok.Value)
			}
			return "", fmt.Errorf("%w: %s: unterminated url(", ErrInvalidValue, d.Property)
		}
	}
	return "", fmt.Errorf("%w: %s: no url() in %q", ErrMissing, d.Property, d.Value)
}

func (b Block) lookup(prop string) (Declaration, error) {
	d, ok := b[strings.ToLower(prop)]
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %s", ErrMissing, prop)
	}
	return d, nil
}

// lengths collects pixel lengths in order and counts the value components
// that are not pixel lengths.
func (d Declaration) lengths() (out []int, rest int) {
	sign := 0.0
	for i, vt := range d.tokens {
		t := vt.tok
		if t.Type == scanner.TokenChar && (t.Value == "-" || t.Value == "+") &&
			i+1 < len(d.tokens) && !d.tokens[i+1].spaceBefore && isNumeric(d.tokens[i+1].tok) {
			sign = 1
			if t.Value == "-" {
				sign = -1
			}
			continue
		}
		px, ok := pixelValue(t)
		if !ok {
			rest++
			sign = 0
			continue
		}
		if sign != 0 {
			px *= sign
			sign = 0
		}
		out = append(out, int(math.Round(px)))
	}
	return out, rest
}

// outOfRange reports a px length whose magnitude exceeds MaxLength.
func outOfRange(t *scanner.Token) bool {
	if t.Type != scanner.TokenDimension {
		return false
	}
	v := strings.ToLower(t.Value)
	if !strings.HasSuffix(v, "px") {
		return false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if errors.Is(err, strconv.ErrRange) {
		return true
	}
	return err == nil && math.Abs(f) > MaxLength
}

func isNumeric(t *scanner.Token) bool {
	return t.Type == scanner.TokenDimension || t.Type == scanner.TokenNumber || t.Type == scanner.TokenPercentage
}

func pixelValue(t *scanner.Token) (float64, bool) {
	switch t.Type {
	case scanner.TokenDimension:
		v := strings.ToLower(t.Value)
		if !strings.HasSuffix(v, "px") {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
		if err != nil || math.IsNaN(f) || math.Abs(f) > MaxLength {
			return 0, false
		}
		return f, true
	case scanner.TokenNumber:
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil || f != 0 {
			return 0, false
		}
		return 0, true
	}
	return 0, false
}

func unwrapURL(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 4 && strings.EqualFold(v[:4], "url(") {
		v = v[4:]
	}
	v = strings.TrimSpace(strings.TrimSuffix(v, ")"))
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	return strings.TrimSpace(v)
}
