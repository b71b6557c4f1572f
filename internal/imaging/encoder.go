package imaging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrTooLarge is returned when the uploaded image exceeds the configured cap.
var ErrTooLarge = errors.New("imaging: image exceeds size limit")

// ErrUnsupportedType is returned for payloads that are not images.
var ErrUnsupportedType = errors.New("imaging: unsupported media type")

// EncodedImage is a transport-ready image payload: the raw bytes encoded as
// base64 text plus the detected media type.
type EncodedImage struct {
	MediaType string
	Data      string
}

// Encoder buffers an uploaded image and converts it into an EncodedImage.
type Encoder struct {
	maxBytes int64
}

// NewEncoder builds an Encoder enforcing maxBytes; zero or negative disables
// the limit.
func NewEncoder(maxBytes int64) *Encoder {
	return &Encoder{maxBytes: maxBytes}
}

// Encode reads the image from r and returns its base64 payload. The declared
// content type is trusted only when it is an image type; otherwise the type
// is sniffed from the leading bytes.
func (e *Encoder) Encode(r io.Reader, declaredType string) (*EncodedImage, error) {
	reader := r
	if e.maxBytes > 0 {
		// One extra byte distinguishes "exactly at the limit" from over it.
		reader = io.LimitReader(r, e.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("imaging: read image: %w", err)
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("imaging: empty image payload")
	}

	mediaType := normalizeMediaType(declaredType)
	if mediaType == "" {
		mediaType = normalizeMediaType(http.DetectContentType(data))
	}
	if mediaType == "" {
		return nil, ErrUnsupportedType
	}

	return &EncodedImage{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

func normalizeMediaType(raw string) string {
	mt := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	if !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}
