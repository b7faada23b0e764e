package camera

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"strings"

	"github.com/disintegration/imaging"
)

// Frame capture parameters. Frames are downscaled to a fixed width and
// recompressed so every request carries a predictable payload size.
const (
	// TargetWidth is the width of every dispatched frame.
	TargetWidth = 640

	// JPEGQuality on the encoder's 1-100 scale (0.8 on a 0-1 scale).
	JPEGQuality = 80
)

// dataURLPrefix precedes the base64 payload in an encoded frame.
const dataURLPrefix = "data:image/jpeg;base64,"

// EncodeFrame scales img to TargetWidth, preserving aspect ratio
// (height floored, minimum 1), and returns it as a JPEG data URL.
// Returns "" for a nil or zero-sized frame.
func EncodeFrame(img image.Image) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return ""
	}

	th := h * TargetWidth / w
	if th < 1 {
		th = 1
	}
	scaled := imaging.Resize(img, TargetWidth, th, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return ""
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// FrameBytes extracts the raw JPEG bytes from an encoded frame.
// Returns nil for anything that is not a JPEG data URL.
func FrameBytes(dataURL string) []byte {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
	if err != nil {
		return nil
	}
	return data
}

// Snapshot grabs the current frame from the held device and encodes it.
// Returns "" when no device is held or the device has no frame yet;
// that is "skip this tick", not a fatal condition.
func (m *Manager) Snapshot() string {
	dev := m.current()
	if dev == nil {
		return ""
	}

	img, err := dev.Grab()
	if err != nil {
		m.recordError(err)
		m.logger.Warn("frame grab failed", "error", err)
		return ""
	}
	return EncodeFrame(img)
}
