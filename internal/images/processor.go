// Package images normalizes uploaded image bytes before they reach blob
// storage: decode, bound the dimensions, re-encode as WebP.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	// DefaultMaxDimension bounds the long edge of processed images.
	DefaultMaxDimension = 2048
	// AvatarMaxDimension bounds avatar and header images.
	AvatarMaxDimension = 1024
	// WebPQuality is the lossy encode quality for stored images.
	WebPQuality = 80
)

// MaxUploadBytes is the largest accepted upload.
const MaxUploadBytes = 10 * 1024 * 1024

// Processor decodes, downscales and re-encodes uploaded images. The output
// is always WebP, so stored references carry a single content type.
type Processor struct {
	maxDimension int
}

// NewProcessor creates a processor bounding images to maxDimension on the
// long edge; zero means DefaultMaxDimension.
func NewProcessor(maxDimension int) *Processor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Processor{maxDimension: maxDimension}
}

// Result is a processed image ready for upload.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Process validates and normalizes raw upload bytes.
func (p *Processor) Process(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("images: empty upload")
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("images: upload exceeds %d bytes", MaxUploadBytes)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("images: decode: %w", err)
	}

	src = p.bound(src)
	b := src.Bounds()

	var buf bytes.Buffer
	if err := webp.Encode(&buf, src, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("images: encode webp: %w", err)
	}

	return &Result{
		Data:        buf.Bytes(),
		ContentType: "image/webp",
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// bound downscales the image so its long edge fits maxDimension. Images
// already within bounds pass through untouched.
func (p *Processor) bound(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= p.maxDimension {
		return src
	}

	scale := float64(p.maxDimension) / float64(long)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
