package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/docingest/internal/common"
)

const compositeJPEGQuality = 85

// Composite stacks the page's extracted images vertically into one JPEG so a
// single model call sees all of them. Each image wider than maxWidth is
// scaled down first; undecodable inputs are skipped.
func Composite(images [][]byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 1024
	}

	var decoded []image.Image
	width, height := 0, 0
	for _, data := range images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		img = scaleToWidth(img, maxWidth)
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
		decoded = append(decoded, img)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("composite: %w: no decodable images", common.ErrInvalidInput)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	// White background so narrow images do not leave black bands.
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	y := 0
	for _, img := range decoded {
		b := img.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		y += b.Dy()
	}

	return encodeJPEG(canvas)
}

// CropMargins trims a uniform fraction off every edge of a full-page render.
// Used as the captioning fallback when per-image extraction yields nothing,
// so page margins and headers do not dominate the picture.
func CropMargins(img image.Image, frac float64) image.Image {
	if frac <= 0 || frac >= 0.5 {
		return img
	}
	b := img.Bounds()
	dx := int(float64(b.Dx()) * frac)
	dy := int(float64(b.Dy()) * frac)
	crop := image.Rect(b.Min.X+dx, b.Min.Y+dy, b.Max.X-dx, b.Max.Y-dy)
	if crop.Empty() {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(out, out.Bounds(), img, crop.Min, draw.Src)
	return out
}

// EncodePage scales a full-page render down to maxWidth and JPEG-encodes it.
func EncodePage(img image.Image, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 1024
	}
	return encodeJPEG(scaleToWidth(img, maxWidth))
}

func scaleToWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return img
	}
	h := int(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx()))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: compositeJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
