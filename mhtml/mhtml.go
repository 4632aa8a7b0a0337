// Package mhtml decodes single-file web archives (MIME multipart/related
// captures, .mhtml / .mht) into the page markup and a map of embedded
// binary resources keyed by their fileName identifier.
//
// Usage:
//
//	dec := mhtml.NewDecoder(mhtml.Options{})
//	arch, err := dec.Decode(f)
//	pages := arch.HTML
//	rc, err := arch.Open("sprite_0001.png")
package mhtml

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/mhtml2pdf/horosafe"
	"github.com/hazyhaar/mhtml2pdf/policy"
)

// maxDepth bounds multipart nesting.
const maxDepth = 8

// Options configures a Decoder.
type Options struct {
	// ResourceTypes lists the media types recorded as resources. Entries
	// are exact types or "type/*" wildcards. Default: application/octet-stream.
	ResourceTypes []string

	// MaxPartSize caps the decoded size of any single part (default: 64 MiB).
	MaxPartSize int64

	// ScratchDir, when set, receives resource payloads as files instead of
	// keeping them in memory. The directory must exist; the caller owns it.
	ScratchDir string

	// Mode decides whether recoverable part defects abort decoding.
	Mode policy.Mode

	// Logger for warnings and debug messages.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if len(o.ResourceTypes) == 0 {
		o.ResourceTypes = []string{"application/octet-stream"}
	}
	for i, t := range o.ResourceTypes {
		o.ResourceTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
	if o.MaxPartSize <= 0 {
		o.MaxPartSize = 64 << 20
	}
	if o.Mode == "" {
		o.Mode = policy.Tolerant
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Decoder turns archive bytes into an Archive.
type Decoder struct {
	opts   Options
	logger *slog.Logger
}

// NewDecoder creates a Decoder with the given options.
func NewDecoder(opts Options) *Decoder {
	opts.ResourceTypes = append([]string(nil), opts.ResourceTypes...)
	opts.defaults()
	return &Decoder{opts: opts, logger: opts.Logger}
}

// Decode reads one MIME message from r. It fails with ErrMalformedArchive
// when r is not a MIME message and with ErrMissingDocumentPart when no
// text/html part is present.
func (d *Decoder) Decode(r io.Reader) (*Archive, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}

	header := textproto.MIMEHeader(msg.Header)
	a := &Archive{
		Resources: make(map[string]*Resource),
		Location:  header.Get("Snapshot-Content-Location"),
	}
	if err := d.walk(a, header, msg.Body, 0); err != nil {
		return nil, err
	}
	if a.HTML == nil {
		return nil, ErrMissingDocumentPart
	}

	d.logger.Debug("archive decoded",
		"resources", len(a.order), "html_bytes", len(a.HTML), "location", a.Location)
	return a, nil
}

// walk visits one entity and, for multipart entities, all of its children.
func (d *Decoder) walk(a *Archive, header textproto.MIMEHeader, body io.Reader, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: multipart nesting deeper than %d", ErrMalformedArchive, maxDepth)
	}

	ct := header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		d.logger.Debug("skipping part with unparseable content type", "content_type", ct, "error", err)
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%w: %s without boundary", ErrMalformedArchive, mediaType)
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
			}
			if err := d.walk(a, part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	cte := strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding")))

	switch {
	case mediaType == "text/html":
		if a.HTML != nil {
			d.logger.Debug("ignoring additional html part", "location", header.Get("Content-Location"))
			return nil
		}
		data, err := horosafe.LimitedReadAll(transferDecoder(body, cte), d.opts.MaxPartSize)
		if err != nil {
			if errors.Is(err, horosafe.ErrTooLarge) {
				return fmt.Errorf("%w: html part: %v", ErrResourceTooLarge, err)
			}
			return fmt.Errorf("%w: html part: %v", ErrMalformedArchive, err)
		}
		a.HTML = data
		a.HTMLType = ct
		if loc := header.Get("Content-Location"); loc != "" {
			a.Location = loc
		}
	case cte == "base64" && d.isResourceType(mediaType):
		return d.addResource(a, header, mediaType, body)
	}
	return nil
}

func (d *Decoder) addResource(a *Archive, header textproto.MIMEHeader, mediaType string, body io.Reader) error {
	loc := header.Get("Content-Location")
	id, ok := ResourceID(loc)
	if !ok {
		return d.opts.Mode.Recover(d.logger,
			fmt.Errorf("%w: content-location %q", ErrMissingResourceIdentifier, loc),
			"media_type", mediaType)
	}

	res := &Resource{ID: id, MediaType: mediaType, Location: loc}
	payload := base64.NewDecoder(base64.StdEncoding, body)

	var err error
	if d.opts.ScratchDir != "" {
		err = d.spill(res, payload)
	} else {
		res.data, err = horosafe.LimitedReadAll(payload, d.opts.MaxPartSize)
		res.Size = int64(len(res.data))
	}
	if err != nil {
		var corrupt base64.CorruptInputError
		switch {
		case errors.Is(err, horosafe.ErrTooLarge):
			return fmt.Errorf("%w: %s: %v", ErrResourceTooLarge, id, err)
		case errors.As(err, &corrupt):
			return d.opts.Mode.Recover(d.logger, fmt.Errorf("%w: %s: %v", ErrCorruptResource, id, err), "resource", id)
		case errors.Is(err, horosafe.ErrPathTraversal):
			return d.opts.Mode.Recover(d.logger,
				fmt.Errorf("%w: %q escapes scratch directory", ErrMissingResourceIdentifier, id), "resource", id)
		default:
			return err
		}
	}

	if _, dup := a.Resources[id]; dup {
		d.logger.Warn("duplicate resource identifier, keeping last", "resource", id)
	} else {
		a.order = append(a.order, id)
	}
	a.Resources[id] = res
	return nil
}

// spill streams a payload into the scratch directory.
func (d *Decoder) spill(res *Resource, payload io.Reader) error {
	path, err := horosafe.SafePath(d.opts.ScratchDir, res.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mhtml: scratch dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("mhtml: scratch file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(payload, d.opts.MaxPartSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > d.opts.MaxPartSize {
		err = fmt.Errorf("%w: exceeds %d bytes", horosafe.ErrTooLarge, d.opts.MaxPartSize)
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	res.path = path
	res.Size = n
	return nil
}

func (d *Decoder) isResourceType(mediaType string) bool {
	for _, t := range d.opts.ResourceTypes {
		if t == mediaType {
			return true
		}
		if prefix, ok := strings.CutSuffix(t, "/*"); ok && strings.HasPrefix(mediaType, prefix+"/") {
			return true
		}
	}
	return false
}

// transferDecoder undoes a Content-Transfer-Encoding. multipart.Reader
// already strips quoted-printable from parts; top-level bodies are not.
func transferDecoder(body io.Reader, cte string) io.Reader {
	switch cte {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}
