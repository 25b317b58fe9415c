//go:build gocv

package signals

import (
	"image"

	"gocv.io/x/gocv"
)

// downscaleLuma converts src to grayscale and shrinks it with area
// interpolation in OpenCV. Frames OpenCV cannot take fall back to the pure-Go
// resampler.
func downscaleLuma(src image.Image, scale float64) *image.Gray {
	rgb, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return resampleLuma(src, scale)
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, scaledSize(src.Bounds(), scale), 0, 0, gocv.InterpolationArea)

	img, err := small.ToImage()
	if g, ok := img.(*image.Gray); err == nil && ok {
		return g
	}
	return resampleLuma(src, scale)
}

// silhouette blurs luma, binarises it at the Otsu level and returns the
// bounding box of the largest external contour by area.
func silhouette(luma *image.Gray) (image.Rectangle, bool) {
	src, err := gocv.ImageGrayToMatGray(luma)
	if err != nil {
		return image.Rectangle{}, false
	}
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(src, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}
	return gocv.BoundingRect(contours.At(best)), true
}
