package vision

import (
	"image"
	"image/color"
)

// Brightest は region 内で最も輝度の高い画素の位置と輝度を返す
// 同じ輝度の画素が複数ある場合は走査順で最初のもの
func Brightest(img image.Image, region image.Rectangle) (image.Point, uint8) {
	region = region.Intersect(img.Bounds())
	best := region.Min
	var max uint8

	switch src := img.(type) {
	case *image.Gray:
		for y := region.Min.Y; y < region.Max.Y; y++ {
			row := src.Pix[src.PixOffset(region.Min.X, y):src.PixOffset(region.Max.X, y)]
			for i, v := range row {
				if v > max {
					max = v
					best = image.Pt(region.Min.X+i, y)
				}
			}
		}
	case *image.YCbCr:
		for y := region.Min.Y; y < region.Max.Y; y++ {
			for x := region.Min.X; x < region.Max.X; x++ {
				if v := src.Y[src.YOffset(x, y)]; v > max {
					max = v
					best = image.Pt(x, y)
				}
			}
		}
	default:
		for y := region.Min.Y; y < region.Max.Y; y++ {
			for x := region.Min.X; x < region.Max.X; x++ {
				if v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y; v > max {
					max = v
					best = image.Pt(x, y)
				}
			}
		}
	}
	return best, max
}
