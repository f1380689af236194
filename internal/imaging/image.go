package imaging

import "encoding/base64"

// CapturedImage is the raw image handed to the pipeline by the capture
// surface: bytes as they came off the device plus the declared content type.
// It is discarded once normalized.
type CapturedImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NormalizedImage is a bounded, JPEG-encoded rendition of a captured image.
// It is immutable once produced; StoredPath points at the persisted local
// copy when one has been written.
type NormalizedImage struct {
	Data       []byte
	Width      int
	Height     int
	StoredPath string
}

// Base64 returns the transport payload for inference calls.
func (n *NormalizedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(n.Data)
}
