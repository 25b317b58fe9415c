//go:build !gocv

package signals

import "image"

func downscaleLuma(src image.Image, scale float64) *image.Gray {
	return resampleLuma(src, scale)
}

// silhouette blurs luma, splits it at the Otsu level and returns the bounding
// box of the largest 8-connected foreground region.
func silhouette(luma *image.Gray) (image.Rectangle, bool) {
	blurred := gaussian3x3(luma)
	return largestComponent(threshold(blurred, otsuThreshold(blurred)))
}

// reflect101 maps an out-of-range index back into [0, n) mirroring about the
// edge pixel (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// gaussian3x3 applies the separable [1 2 1]/4 kernel in both directions.
func gaussian3x3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	at := func(x, y int) int { return int(src.Pix[y*src.Stride+x]) }

	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rows[y*w+x] = at(reflect101(x-1, w), y) + 2*at(x, y) + at(reflect101(x+1, w), y)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		up, down := reflect101(y-1, h), reflect101(y+1, h)
		for x := 0; x < w; x++ {
			v := rows[up*w+x] + 2*rows[y*w+x] + rows[down*w+x]
			dst.Pix[y*dst.Stride+x] = uint8((v + 8) / 16)
		}
	}
	return dst
}

// otsuThreshold returns the level maximising between-class variance. Pixels
// strictly above it are foreground. A single-valued image yields 0.
func otsuThreshold(g *image.Gray) uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	var hist [256]float64
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	total := float64(w * h)
	var sum float64
	for i, c := range hist {
		sum += float64(i) * c
	}

	var q1, sum1, best float64
	t := 0
	for i := 0; i < 256; i++ {
		q1 += hist[i]
		sum1 += float64(i) * hist[i]
		if q1 == 0 {
			continue
		}
		q2 := total - q1
		if q2 == 0 {
			break
		}
		d := sum1/q1 - (sum-sum1)/q2
		if between := q1 * q2 * d * d; between > best {
			best = between
			t = i
		}
	}
	return uint8(t)
}

type mask struct {
	w, h int
	on   []bool
}

func threshold(g *image.Gray, t uint8) mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := mask{w: w, h: h, on: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		for x, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			m.on[y*w+x] = v > t
		}
	}
	return m
}

// largestComponent finds the 8-connected foreground region with the most
// pixels and returns its bounding box. Ties keep the first region in raster
// order.
func largestComponent(m mask) (image.Rectangle, bool) {
	seen := make([]bool, len(m.on))
	var (
		best      image.Rectangle
		bestCount int
		queue     []int
	)
	for start, on := range m.on {
		if !on || seen[start] {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)
		x0, y0 := start%m.w, start/m.w
		box := image.Rect(x0, y0, x0+1, y0+1)
		count := 0
		for len(queue) > 0 {
			p := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			count++
			px, py := p%m.w, p/m.w
			box = box.Union(image.Rect(px, py, px+1, py+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					q := ny*m.w + nx
					if m.on[q] && !seen[q] {
						seen[q] = true
						queue = append(queue, q)
					}
				}
			}
		}
		if count > bestCount {
			best, bestCount = box, count
		}
	}
	return best, bestCount > 0
}
