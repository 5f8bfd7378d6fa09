package viz

import (
	"image"
	"image/color"
	"math"
)

// ColorizeMask maps each label of a segmentation mask to a distinct color.
// Label 0 stays black.
func ColorizeMask(mask *image.Gray16) *image.RGBA {
	b := mask.Bounds()
	out := image.NewRGBA(b)
	cache := map[uint16]color.RGBA{0: {0, 0, 0, 255}}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			id := mask.Gray16At(x, y).Y
			c, ok := cache[id]
			if !ok {
				c = labelColor(id)
				cache[id] = c
			}
			out.SetRGBA(x, y, c)
		}
	}
	return out
}

// labelColor steps the hue by the golden ratio so neighbouring ids differ.
func labelColor(id uint16) color.RGBA {
	h := math.Mod(float64(id)*0.618033988749895, 1)
	r, g, b := hueToRGB(h)
	return color.RGBA{r, g, b, 255}
}

func hueToRGB(h float64) (uint8, uint8, uint8) {
	f := func(n float64) uint8 {
		k := math.Mod(n+h*6, 6)
		v := 1 - math.Max(0, math.Min(math.Min(k, 4-k), 1))
		return uint8(math.Round(v * 255))
	}
	return f(5), f(3), f(1)
}
