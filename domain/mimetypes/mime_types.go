package mimetypes

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF MIME = "application/pdf"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWebP MIME = "image/webp"

	AudioMPEG MIME = "audio/mpeg"
	AudioOGG  MIME = "audio/ogg"
	VideoMP4  MIME = "video/mp4"
)

// Attachable lists the media types a message may reference.
var Attachable = []MIME{
	ApplicationPDF, ImagePNG, ImageJPEG, ImageGIF, ImageWebP, AudioMPEG, AudioOGG, VideoMP4,
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Normalize resolves a declared media type against the detector's tree, so aliases
// such as "audio/mp3" land on their canonical type.
func Normalize(declared string) MIME {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(declared))
	if err != nil {
		return Unknown
	}
	if m := mimetype.Lookup(mt); m != nil {
		base, _, _ := mime.ParseMediaType(m.String())
		return MIME(base)
	}
	return MIME(mt)
}

// IsAttachable reports whether declared resolves to one of the Attachable types.
func IsAttachable(declared string) bool {
	normalized := Normalize(declared)
	for _, m := range Attachable {
		if m == normalized {
			return true
		}
	}
	return false
}

// Detect sniffs the content of a payload.
func Detect(content []byte) MIME {
	base, _, err := mime.ParseMediaType(mimetype.Detect(content).String())
	if err != nil {
		return Unknown
	}
	return MIME(base)
}
