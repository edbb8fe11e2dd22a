package card

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxThumbBytes is the blob size limit for post embeds.
const MaxThumbBytes = 1_000_000

// maxThumbWidth bounds the first downscale pass.
const maxThumbWidth = 2000

var errCannotShrink = errors.New("image still too large at minimum size")

// Shrink re-encodes an image as JPEG, lowering quality and then halving width until
// it fits in limit bytes.
func Shrink(data []byte, limit int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img = flattenAlpha(img)

	width := img.Bounds().Dx()
	if width > maxThumbWidth {
		width = maxThumbWidth
	}

	for width >= 64 {
		scaled := scaleToWidth(img, width)
		for _, quality := range []int{85, 70, 55} {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("encode jpeg: %w", err)
			}
			if buf.Len() <= limit {
				return buf.Bytes(), nil
			}
		}
		width /= 2
	}
	return nil, errCannotShrink
}

// scaleToWidth downscales src to width keeping its aspect ratio. It never
// upscales.
func scaleToWidth(src image.Image, width int) image.Image {
	b := src.Bounds()
	if b.Dx() <= width {
		return src
	}
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// flattenAlpha composites src onto a white background for JPEG output.
func flattenAlpha(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
