package handlers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sua-org/cam-guard/internal/core"
)

var boxColor = color.RGBA{R: 255, A: 255}

const strokeWidth = 2

// Annotate devolve uma cópia do quadro com as boxes desenhadas em vermelho
// e o rótulo + score acima de cada uma.
func Annotate(img image.Image, boxes []core.Box, labels []string) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	src := image.NewUniform(boxColor)
	for _, b := range boxes {
		r := b.Rect().Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		drawRect(out, r, src)

		d := &font.Drawer{
			Dst:  out,
			Src:  src,
			Face: basicfont.Face7x13,
			Dot:  labelDot(r, bounds),
		}
		d.DrawString(fmt.Sprintf("%s %.2f", labelFor(b.ClassID, labels), b.Score))
	}
	return out
}

func drawRect(dst draw.Image, r image.Rectangle, src image.Image) {
	w := strokeWidth
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// labelDot coloca o texto logo acima da box, ou dentro dela se não couber.
func labelDot(r, bounds image.Rectangle) fixed.Point26_6 {
	y := r.Min.Y - 3
	if y-basicfont.Face7x13.Ascent < bounds.Min.Y {
		y = r.Min.Y + basicfont.Face7x13.Ascent + strokeWidth
	}
	return fixed.P(r.Min.X, y)
}

func labelFor(classID int, labels []string) string {
	if classID >= 0 && classID < len(labels) {
		return labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
