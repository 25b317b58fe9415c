package signals

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// scaledSize is src's size multiplied by scale, at least one pixel each way.
func scaledSize(b image.Rectangle, scale float64) image.Point {
	return image.Pt(
		max(1, int(math.Round(float64(b.Dx())*scale))),
		max(1, int(math.Round(float64(b.Dy())*scale))),
	)
}

// resampleLuma resamples src by scale into a single-channel image anchored at
// the origin.
func resampleLuma(src image.Image, scale float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rectangle{Max: scaledSize(b, scale)})
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func meanLuma(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum int64
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			sum += int64(v)
		}
	}
	return float64(sum) / float64(w*h)
}

// meanAbsDiff is the mean per-pixel |a-b|. When a degrade step changed the
// working resolution between frames, prev is resampled to cur's size first.
func meanAbsDiff(cur, prev *image.Gray) float64 {
	if cur.Rect.Size() != prev.Rect.Size() {
		resized := image.NewGray(cur.Rect)
		draw.ApproxBiLinear.Scale(resized, resized.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		prev = resized
	}
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum int64
	for y := 0; y < h; y++ {
		a := cur.Pix[y*cur.Stride : y*cur.Stride+w]
		b := prev.Pix[y*prev.Stride : y*prev.Stride+w]
		for x := range a {
			d := int64(a[x]) - int64(b[x])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return float64(sum) / float64(w*h)
}
