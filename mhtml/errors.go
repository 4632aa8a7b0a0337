package mhtml

import "errors"

// Sentinel errors returned by the decoder.
var (
	// ErrMalformedArchive is returned when the input is not a readable
	// MIME message or a multipart body is broken.
	ErrMalformedArchive = errors.New("mhtml: malformed archive")

	// ErrMissingDocumentPart is returned when no text/html part exists.
	ErrMissingDocumentPart = errors.New("mhtml: no text/html part")

	// ErrMissingResourceIdentifier is reported for a binary part whose
	// Content-Location carries no usable fileName= token.
	ErrMissingResourceIdentifier = errors.New("mhtml: resource part has no fileName identifier")

	// ErrCorruptResource is reported for a binary part whose base64
	// payload does not decode.
	ErrCorruptResource = errors.New("mhtml: corrupt resource payload")

	// ErrResourceTooLarge is returned when a part exceeds the size cap.
	ErrResourceTooLarge = errors.New("mhtml: part exceeds size limit")

	// ErrResourceNotFound is returned by Archive.Open for unknown identifiers.
	ErrResourceNotFound = errors.New("mhtml: resource not found")
)
