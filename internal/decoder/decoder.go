// Package decoder turns camera frames into barcode strings.
package decoder

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/erazemk/stockscan/internal/imaging"
)

// ErrNoCode is returned when a frame holds no readable barcode.
var ErrNoCode = errors.New("no barcode found in frame")

// Decoder reads 1D product barcodes and QR shelf labels.
type Decoder struct {
	maxSide int
}

// New returns a Decoder that shrinks frames to imaging.MaxFrameSide first.
func New() *Decoder {
	return &Decoder{maxSide: imaging.MaxFrameSide}
}

// Decode reads a PNG or JPEG frame and returns the first barcode found.
func (d *Decoder) Decode(r io.Reader) (string, error) {
	img, err := imaging.Load(r)
	if err != nil {
		return "", err
	}
	return d.DecodeImage(img)
}

// DecodeImage returns the first barcode found in img.
func (d *Decoder) DecodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(imaging.Fit(img, d.maxSide))
	if err != nil {
		return "", fmt.Errorf("preparing frame: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	// Readers keep per-decode state, so each call gets its own set.
	for _, reader := range readers() {
		result, err := reader.Decode(bmp, hints)
		if err == nil && result != nil && result.GetText() != "" {
			return result.GetText(), nil
		}
	}
	return "", ErrNoCode
}

func readers() []gozxing.Reader {
	return []gozxing.Reader{
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewEAN13Reader(),
		oned.NewEAN8Reader(),
		oned.NewUPCAReader(),
		oned.NewUPCEReader(),
		oned.NewITFReader(),
		qrcode.NewQRCodeReader(),
	}
}
