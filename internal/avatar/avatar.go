// Package avatar turns an uploaded picture into the data URI stored on a
// user's profile.
package avatar

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"

	// Registered decoders for uploads.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxSide is the longest side of a stored avatar in pixels.
	DefaultMaxSide = 200
	// MaxUploadBytes caps how much of an upload is read.
	MaxUploadBytes = 10 << 20
	// MaxSourceSide caps either side of an uploaded image before it is
	// decoded.
	MaxSourceSide = 4096

	jpegQuality = 80
	dataPrefix  = "data:image/jpeg;base64,"
)

var (
	// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
	ErrTooLarge = errors.New("avatar upload is too large")
	// ErrDimensions is returned when a side of the image exceeds MaxSourceSide.
	ErrDimensions = errors.New("avatar image dimensions are too large")
)

// Encode decodes a PNG, JPEG or GIF image from r, scales it down so its
// longest side is at most maxSide and returns it as a JPEG data URI. If ctx is
// done once the upload has been read, the result is discarded and the
// context error is returned.
func Encode(ctx context.Context, r io.Reader, maxSide int) (string, error) {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode avatar: %w", err)
	}
	if cfg.Width > MaxSourceSide || cfg.Height > MaxSourceSide {
		return "", fmt.Errorf("%w: %dx%d", ErrDimensions, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode avatar: %w", err)
	}

	scaled := Scale(src, maxSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return dataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Scale returns src resized so that neither side exceeds maxSide, keeping the
// aspect ratio. Images that already fit are returned unchanged.
func Scale(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}

	nw, nh := maxSide, maxSide
	if w > h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// JPEG returns the picture bytes held by a data URI written by Encode.
func JPEG(uri string) ([]byte, error) {
	payload, ok := strings.CutPrefix(uri, dataPrefix)
	if !ok {
		return nil, errors.New("not a JPEG data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return data, nil
}
