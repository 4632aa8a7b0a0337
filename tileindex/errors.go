package tileindex

import "errors"

var (
	// ErrMissingDimension is reported for a page whose width or height
	// style is absent or not a pixel length.
	ErrMissingDimension = errors.New("tileindex: page dimension missing")
	// ErrMissingBackground is reported for a tile with no usable
	// background-image reference.
	ErrMissingBackground = errors.New("tileindex: tile has no sprite reference")
	// ErrMalformedTile is reported for a tile whose grid coordinates or
	// background position cannot be read.
	ErrMalformedTile = errors.New("tileindex: malformed tile")
	// ErrPageTooLarge is returned for a page whose pixel area exceeds the
	// configured limit. It is fatal in every mode.
	ErrPageTooLarge = errors.New("tileindex: page too large")
	// ErrInvalidGeometry is returned for a non-positive or oversized tile
	// size.
	ErrInvalidGeometry = errors.New("tileindex: invalid tile geometry")
)
