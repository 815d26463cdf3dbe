package inference

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// PrepareInput fills an ONNX input tensor of shape 1x3xHxW with img resized to
// size, as planar RGB scaled to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination tensor to populate.
//   - size: The network input width (X) and height (Y).
//
// Returns:
//   - error: An error if the destination tensor is too small.
func PrepareInput(img image.Image, dst *ort.Tensor[float32], size image.Point) error {
	return fillCHW(img, dst.GetData(), size)
}

func fillCHW(img image.Image, data []float32, size image.Point) error {
	channelSize := size.X * size.Y
	if len(data) < channelSize*3 {
		return fmt.Errorf("destination tensor only holds %d floats, needs "+
			"%d (make sure it's the right shape!)", len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	bounds := img.Bounds()
	if bounds.Dx() != size.X || bounds.Dy() != size.Y {
		img = resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3)
		bounds = img.Bounds()
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size.Y; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
