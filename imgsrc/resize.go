package imgsrc

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/rawforge/develop/operator"
)

// bufferImage adapts an operator.Buffer's linear float32 RGBA data to the
// standard image.Image interface so it can drive golang.org/x/image/draw's
// resamplers, which only operate on that interface.
type bufferImage struct{ buf *operator.Buffer }

func (b bufferImage) ColorModel() color.Model { return color.NRGBA64Model }

func (b bufferImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.buf.Width, b.buf.Height)
}

func (b bufferImage) At(x, y int) color.Color {
	o := y*b.buf.Stride + x*4
	return color.NRGBA64{
		R: floatToUint16(b.buf.Data[o]),
		G: floatToUint16(b.buf.Data[o+1]),
		B: floatToUint16(b.buf.Data[o+2]),
		A: floatToUint16(b.buf.Data[o+3]),
	}
}

// writableBufferImage is the draw.Image destination Resize writes into.
type writableBufferImage struct{ buf *operator.Buffer }

func (b writableBufferImage) ColorModel() color.Model { return color.NRGBA64Model }

func (b writableBufferImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.buf.Width, b.buf.Height)
}

func (b writableBufferImage) At(x, y int) color.Color {
	return bufferImage(b).At(x, y)
}

func (b writableBufferImage) Set(x, y int, c color.Color) {
	r, g, bl, a := c.RGBA()
	o := y*b.buf.Stride + x*4
	b.buf.Data[o] = float32(r) / 0xffff
	b.buf.Data[o+1] = float32(g) / 0xffff
	b.buf.Data[o+2] = float32(bl) / 0xffff
	b.buf.Data[o+3] = float32(a) / 0xffff
}

func floatToUint16(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v * 0xffff)
}

// Resize scales src to exactly (dstW, dstH) with a Catmull-Rom resampler,
// used to turn the nearest power-of-two mipmap level into the exact
// output size a pipeline's requested ROI calls for (an arbitrary zoom
// ratio rarely lands on a mip boundary). Returns src unchanged if it is
// already the requested size.
func Resize(src *operator.Buffer, dstW, dstH int) *operator.Buffer {
	if src == nil || (src.Width == dstW && src.Height == dstH) {
		return src
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	dst := &operator.Buffer{Width: dstW, Height: dstH, Stride: dstW * 4, Data: make([]float32, dstW*dstH*4)}
	dstImg := writableBufferImage{dst}
	srcImg := bufferImage{src}
	draw.CatmullRom.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)
	return dst
}
