package mhtml

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// fileNameToken marks the resource identifier inside a URL, both in part
// Content-Location headers and in url() references of the markup.
const fileNameToken = "fileName="

// ResourceID extracts the identifier from a resource reference: the text
// after the last "fileName=" token, with surrounding quotes and whitespace
// removed. Archive parts and style references go through this same
// function so both sides agree on the key.
func ResourceID(ref string) (string, bool) {
	i := strings.LastIndex(ref, fileNameToken)
	if i < 0 {
		return "", false
	}
	id := strings.TrimSpace(ref[i+len(fileNameToken):])
	id = strings.TrimSpace(strings.Trim(id, `"'`))
	return id, id != ""
}

// Resource is one decoded binary part. It is immutable once decoded; its
// payload lives either in memory or in a scratch file.
type Resource struct {
	ID        string
	MediaType string
	Location  string
	Size      int64

	data []byte
	path string
}

// Open returns a reader over the decoded payload.
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.path != "" {
		f, err := os.Open(r.path)
		if err != nil {
			return nil, fmt.Errorf("mhtml: open resource %s: %w", r.ID, err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(r.data)), nil
}

// Spilled reports whether the payload was written to the scratch directory.
func (r *Resource) Spilled() bool {
	return r.path != ""
}

// Archive is the decoded content of one MHTML file.
type Archive struct {
	// HTML is the body of the first text/html part, transfer-decoded.
	HTML []byte
	// HTMLType is that part's Content-Type header (carries the charset).
	HTMLType string
	// Location is the Content-Location of the HTML part, or the snapshot
	// location of the whole message.
	Location string

	// Resources maps identifiers to decoded binary parts.
	Resources map[string]*Resource

	order []string
}

// IDs returns resource identifiers in archive order.
func (a *Archive) IDs() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Resource returns the resource registered under id.
func (a *Archive) Resource(id string) (*Resource, bool) {
	r, ok := a.Resources[id]
	return r, ok
}

// Open returns a reader over the payload of resource id, or an error
// wrapping ErrResourceNotFound.
func (a *Archive) Open(id string) (io.ReadCloser, error) {
	r, ok := a.Resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return r.Open()
}
