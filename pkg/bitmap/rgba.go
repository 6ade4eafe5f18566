package bitmap

import (
	"image"
	"image/color"
)

// ToRGBA converts the BGR payload into an image.RGBA with the top row first.
func (img *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	stride := img.Stride()
	bpp := img.BytesPerPixel
	for row := 0; row < img.Height; row++ {
		y := row
		if img.BottomUp() {
			y = img.Height - 1 - row
		}
		line := img.Pix[row*stride : (row+1)*stride]
		for x := 0; x < img.Width; x++ {
			p := line[x*bpp : x*bpp+bpp]
			out.SetRGBA(x, y, color.RGBA{R: p[2], G: p[1], B: p[0], A: 0xff})
		}
	}
	return out
}
