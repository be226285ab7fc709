package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidImage indicates the submitted payload is not a decodable image.
var ErrInvalidImage = errors.New("invalid image payload")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Payload is a decoded inline image ready for upload.
type Payload struct {
	Data        []byte
	ContentType string
	Ext         string
}

// DecodeDataURL decodes a base64 data URL of the form
// data:image/png;base64,... into raw bytes. Only the image content types the
// platform serves are accepted.
func DecodeDataURL(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return Payload{}, ErrInvalidImage
	}

	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return Payload{}, ErrInvalidImage
	}

	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Payload{}, ErrInvalidImage
	}

	ext, ok := extensions[contentType]
	if !ok {
		return Payload{}, fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, contentType)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return Payload{}, ErrInvalidImage
	}

	return Payload{Data: data, ContentType: contentType, Ext: ext}, nil
}
