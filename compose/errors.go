package compose

import "errors"

var (
	// ErrMissingResource is reported for a tile whose sprite is not
	// available.
	ErrMissingResource = errors.New("compose: sprite not found")
	// ErrDecodeSprite is reported for a resource that is not a decodable
	// image.
	ErrDecodeSprite = errors.New("compose: cannot decode sprite")
)
