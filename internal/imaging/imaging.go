package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxPhotoSide is the maximum width or height of stored product photos.
const MaxPhotoSide = 1024

// MaxFrameSide bounds camera frames before they are handed to the barcode decoder.
const MaxFrameSide = 1600

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Photo is a processed product photo.
type Photo struct {
	Data []byte
	MIME string
}

// Load reads an image, checking the format by sniffing bytes rather than
// trusting client headers.
func Load(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// ProcessPhoto loads a product photo, shrinks it to MaxPhotoSide and
// re-encodes it as JPEG.
func ProcessPhoto(r io.Reader) (*Photo, error) {
	img, err := Load(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(img, MaxPhotoSide), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// Fit resizes img so neither side exceeds maxSide, keeping the aspect ratio.
// Smaller images are returned unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w <= maxSide && h <= maxSide {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxSide
		newH = int(float64(h) * float64(maxSide) / float64(w))
	} else {
		newH = maxSide
		newW = int(float64(w) * float64(maxSide) / float64(h))
	}
	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
