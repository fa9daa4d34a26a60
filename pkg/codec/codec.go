// ABOUTME: Snapshot codec between canvas pixels and portable payload strings
// ABOUTME: Lossless PNG is used so decode(encode(s)) is pixel-identical

package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/canvas"
)

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Encode serializes an image into a payload string. Output is deterministic
// for identical pixels.
func Encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return Payload{MIMEType: MIMEType, CodecVersion: Version, Data: buf.Bytes()}.String(), nil
}

// EncodeSurface serializes the current pixels of a surface
func EncodeSurface(s *canvas.Surface) (string, error) {
	return Encode(s.Image())
}

// Decode parses a payload string into an image. Unknown encodings, corrupt
// data and images larger than canvas.MaxDimension return an error wrapping
// board.ErrDecode.
func Decode(s string) (image.Image, error) {
	p, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if p.MIMEType != MIMEType {
		return nil, fmt.Errorf("%w: unsupported encoding %q", board.ErrDecode, p.MIMEType)
	}
	if p.CodecVersion != Version {
		return nil, fmt.Errorf("%w: unsupported codec version %d", board.ErrDecode, p.CodecVersion)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrDecode, err)
	}
	if cfg.Width > canvas.MaxDimension || cfg.Height > canvas.MaxDimension {
		return nil, fmt.Errorf("%w: image %dx%d exceeds %d pixels per side",
			board.ErrDecode, cfg.Width, cfg.Height, canvas.MaxDimension)
	}
	img, err := png.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrDecode, err)
	}
	return img, nil
}

// DecodeInto decodes a payload and loads it onto the surface. A payload of a
// different size is scaled to the surface. On error the surface is untouched.
func DecodeInto(s *canvas.Surface, payload string) error {
	img, err := Decode(payload)
	if err != nil {
		return err
	}
	s.Load(img)
	return nil
}

// Blank returns the payload of an empty canvas
func Blank(width, height int, background string) (string, error) {
	s, err := canvas.New(width, height, background)
	if err != nil {
		return "", err
	}
	return EncodeSurface(s)
}
