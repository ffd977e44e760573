package bottle

import "strings"

// URI returns a string a chat platform can send: the URL itself, or a data
// URI for base64 payloads.
func (i Image) URI() string {
	if i.Type == ImageBase64 {
		return DataURI(i.Data)
	}
	return i.Data
}

// DataURI turns a bare base64 payload into a data URI; URIs pass through.
func DataURI(payload string) string {
	if strings.HasPrefix(payload, "data:") {
		return payload
	}
	return "data:" + sniffMediaType(payload) + ";base64," + payload
}

// SplitDataURI returns the media type and bare payload of a base64 image,
// which may or may not carry a data URI header.
func SplitDataURI(data string) (mediaType, payload string) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		if meta, body, ok := strings.Cut(rest, ","); ok {
			mt, _, _ := strings.Cut(meta, ";")
			if mt == "" {
				mt = "image/jpeg"
			}
			return mt, body
		}
	}
	return sniffMediaType(data), data
}

// sniffMediaType guesses the media type from the first base64 characters.
func sniffMediaType(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "iVBORw0KGgo"):
		return "image/png"
	case strings.HasPrefix(b64, "R0lGOD"):
		return "image/gif"
	case strings.HasPrefix(b64, "UklGR"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
