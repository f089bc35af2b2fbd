package transcode

import "strings"

// Format identifies an output image format.
type Format string

const (
	FormatAVIF Format = "avif"
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// MIME returns the media type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatAVIF:
		return "image/avif"
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// ParseFormat maps a configuration string to a Format. Only the modern
// negotiable formats are accepted; the native fallbacks are never
// configured explicitly.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "avif":
		return FormatAVIF, true
	case "webp":
		return FormatWebP, true
	}
	return "", false
}

// Negotiate selects the output format for a request. The preference list is
// walked in order and the first format the client accepts wins; otherwise
// the closest native format to the source is used: PNG stays PNG, anything
// else becomes JPEG.
func Negotiate(preferences []Format, accept, sourceType string) Format {
	for _, f := range preferences {
		if strings.Contains(accept, f.MIME()) {
			return f
		}
	}
	if mediaType(sourceType) == "image/png" {
		return FormatPNG
	}
	return FormatJPEG
}

// IsAnimated reports whether the source format can carry animation and must
// therefore bypass transcoding: re-encoding a GIF would keep only the first
// frame.
func IsAnimated(sourceType string) bool {
	return mediaType(sourceType) == "image/gif"
}

// mediaType strips any parameters from a Content-Type header value.
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
