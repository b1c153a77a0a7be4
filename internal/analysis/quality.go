package analysis

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	minFaceWidth    = 20
	minFaceHeight   = 20
	minAspectRatio  = 0.4
	maxAspectRatio  = 1.6
	minSharpness    = 3.0
	minBrightness   = 15.0
	maxBrightness   = 245.0
	cropMarginRatio = 0.3
)

// assessQuality decides whether an unknown face is good enough to enroll.
// It returns an empty string for an acceptable face, otherwise the reason.
func assessQuality(img image.Image, box image.Rectangle) string {
	w, h := box.Dx(), box.Dy()
	if w < minFaceWidth || h < minFaceHeight {
		return fmt.Sprintf("too small (%dx%d)", w, h)
	}

	aspect := float64(w) / float64(max(h, 1))
	if aspect < minAspectRatio || aspect > maxAspectRatio {
		return fmt.Sprintf("aspect ratio (%.2f)", aspect)
	}

	region := box.Intersect(img.Bounds())
	if region.Empty() {
		return "empty region"
	}
	gray := imaging.Grayscale(imaging.Crop(img, region))

	if v := laplacianVariance(gray); v < minSharpness {
		return fmt.Sprintf("blurry (%.1f)", v)
	}

	b := meanBrightness(gray)
	if b < minBrightness {
		return fmt.Sprintf("too dark (%.0f)", b)
	}
	if b > maxBrightness {
		return fmt.Sprintf("too bright (%.0f)", b)
	}
	return ""
}

// laplacianVariance is the variance of the 4-neighbour Laplacian over the
// interior pixels of a grayscale image.
func laplacianVariance(g *image.NRGBA) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	px := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x*4]) }

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			l := px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1) - 4*px(x, y)
			sum += l
			sumSq += l * l
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func meanBrightness(g *image.NRGBA) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			sum += float64(row[x*4])
		}
	}
	return sum / float64(w*h)
}

// cropFace maps box from the detection frame back onto the original frame,
// grows it by 30% per side and crops. It returns nil when nothing is left
// after clipping.
func cropFace(orig image.Image, detectFrame image.Rectangle, box image.Rectangle) image.Image {
	ob := orig.Bounds()
	fx := float64(ob.Dx()) / float64(max(detectFrame.Dx(), 1))
	fy := float64(ob.Dy()) / float64(max(detectFrame.Dy(), 1))

	x0 := float64(box.Min.X-detectFrame.Min.X) * fx
	y0 := float64(box.Min.Y-detectFrame.Min.Y) * fy
	x1 := float64(box.Max.X-detectFrame.Min.X) * fx
	y1 := float64(box.Max.Y-detectFrame.Min.Y) * fy

	mw := (x1 - x0) * cropMarginRatio
	mh := (y1 - y0) * cropMarginRatio

	r := image.Rect(
		ob.Min.X+int(math.Floor(x0-mw)),
		ob.Min.Y+int(math.Floor(y0-mh)),
		ob.Min.X+int(math.Ceil(x1+mw)),
		ob.Min.Y+int(math.Ceil(y1+mh)),
	).Intersect(ob)
	if r.Empty() {
		return nil
	}
	return imaging.Crop(orig, r)
}
