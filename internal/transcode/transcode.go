// Package transcode re-encodes source images into the best mutually
// acceptable format, applying optional resize and quality parameters. It is
// a pure transformation over bytes: callers decide what to do when it
// fails.
package transcode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

const (
	// MaxWidth caps the w parameter; wider requests are clamped, not
	// rejected, because an image display use case should never 400 over a
	// tuning knob.
	MaxWidth = 3840

	MinQuality     = 30
	MaxQuality     = 95
	DefaultQuality = 75
)

// ClampWidth bounds w to [1, MaxWidth]. Zero means no resize and passes
// through untouched.
func ClampWidth(w int) int {
	if w <= 0 {
		return 0
	}
	if w > MaxWidth {
		return MaxWidth
	}
	return w
}

// ClampQuality bounds q to [MinQuality, MaxQuality], with zero meaning the
// default.
func ClampQuality(q int) int {
	if q == 0 {
		return DefaultQuality
	}
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Request describes a single transcode. It is derived per HTTP request and
// never persisted.
type Request struct {
	// Source holds the original encoded bytes.
	Source []byte

	// ContentType is the source media type as reported by the upstream.
	ContentType string

	// Accept is the requesting client's Accept header.
	Accept string

	// Width, when non-zero, requests a resize without enlargement.
	Width int

	// Quality is passed to the encoder. Zero means DefaultQuality.
	Quality int
}

// Result is a successfully transcoded image. Format is empty when the
// source was passed through untouched.
type Result struct {
	Body        []byte
	ContentType string
	Format      Format
}

// Transcoder negotiates and performs image re-encoding. The preference
// order is fixed at construction so the policy is explicit and swappable
// rather than buried in conditionals.
type Transcoder struct {
	preferences []Format
}

// New creates a Transcoder with the given negotiation preference order,
// most preferred first. With no arguments the order is AVIF then WebP.
func New(preferences ...Format) *Transcoder {
	if len(preferences) == 0 {
		preferences = []Format{FormatAVIF, FormatWebP}
	}
	return &Transcoder{preferences: preferences}
}

// Negotiate returns the output format that would be used for the given
// Accept header and source type.
func (t *Transcoder) Negotiate(accept, sourceType string) Format {
	return Negotiate(t.preferences, accept, sourceType)
}

// Preferred returns the first preferred format the client accepts. The
// boolean is false when negotiation would fall back to a native format,
// which cannot be known before the source has been fetched.
func (t *Transcoder) Preferred(accept string) (Format, bool) {
	for _, f := range t.preferences {
		if strings.Contains(accept, f.MIME()) {
			return f, true
		}
	}
	return "", false
}

// Transcode re-encodes req.Source per content negotiation. Animated
// sources are returned verbatim: transcoding would break animation and
// gains little. Decode or encode failures return an error and leave the
// fallback decision to the caller.
func (t *Transcoder) Transcode(req Request) (*Result, error) {
	if IsAnimated(req.ContentType) {
		return &Result{Body: req.Source, ContentType: req.ContentType}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(req.Source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("transcode: failed to decode source: %w", err)
	}

	width := ClampWidth(req.Width)
	if width > 0 && width < img.Bounds().Dx() {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	format := t.Negotiate(req.Accept, req.ContentType)
	quality := ClampQuality(req.Quality)

	var buf bytes.Buffer
	switch format {
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: quality})
	case FormatWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: quality})
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, fmt.Errorf("transcode: failed to encode as %s: %w", format, err)
	}

	return &Result{Body: buf.Bytes(), ContentType: format.MIME(), Format: format}, nil
}
