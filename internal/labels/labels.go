// Package labels renders printable product and shelf labels.
package labels

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

// shelfPrefix marks QR payloads that identify a shelf rather than a product.
const shelfPrefix = "SHELF:"

const (
	moduleWidth   = 3
	barHeight     = 120
	quietModules  = 10
	DefaultQRSize = 256
)

// ShelfPayload is the text encoded in a shelf's QR label.
func ShelfPayload(id int64) string {
	return shelfPrefix + strconv.FormatInt(id, 10)
}

// ParseShelf recognizes a scanned shelf label and returns the shelf ID.
func ParseShelf(code string) (int64, bool) {
	rest, ok := strings.CutPrefix(code, shelfPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ProductPNG renders value as a Code128 barcode with a white quiet zone.
func ProductPNG(value string) ([]byte, error) {
	bc, err := code128.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encoding barcode: %w", err)
	}

	scaled, err := barcode.Scale(bc, bc.Bounds().Dx()*moduleWidth, barHeight)
	if err != nil {
		return nil, fmt.Errorf("scaling barcode: %w", err)
	}

	margin := quietModules * moduleWidth
	b := scaled.Bounds()
	canvas := image.NewGray(image.Rect(0, 0, b.Dx()+2*margin, b.Dy()+2*margin))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, b.Add(image.Pt(margin, margin)), scaled, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encoding barcode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// ShelfPNG renders a shelf's QR label. size is the side in pixels.
func ShelfPNG(id int64, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	data, err := qrcode.Encode(ShelfPayload(id), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("creating QR code: %w", err)
	}
	return data, nil
}
