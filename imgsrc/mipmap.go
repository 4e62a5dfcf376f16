package imgsrc

import (
	"math"

	"github.com/rawforge/develop/operator"
)

// MipmapChain holds precomputed downscaled versions of a source buffer.
// Level 0 is the full-resolution buffer; each subsequent level halves both
// dimensions via a 2x2 box filter, continuing until the largest dimension
// reaches 1 pixel (the smaller dimension stays clamped at 1 once it gets
// there). Adapted from the source's internal/image/mipmap.go,
// generalized from 8-bit display pixmaps to linear float32 RGBA.
type MipmapChain struct {
	levels []*operator.Buffer
	pool   *Pool
}

// Generate builds a mipmap chain from src. Level 0 aliases src directly (no
// copy); levels 1..N are drawn from pool (or the package default pool when
// pool is nil). Returns nil if src is nil or empty.
func Generate(src *operator.Buffer, pool *Pool) *MipmapChain {
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil
	}
	if pool == nil {
		pool = defaultPool
	}

	maxDim := src.Width
	if src.Height > maxDim {
		maxDim = src.Height
	}
	numLevels := 1 + int(math.Floor(math.Log2(float64(maxDim))))

	chain := &MipmapChain{levels: make([]*operator.Buffer, numLevels), pool: pool}
	chain.levels[0] = src

	for i := 1; i < numLevels; i++ {
		chain.levels[i] = downsample(chain.levels[i-1], pool)
	}
	return chain
}

func downsample(src *operator.Buffer, pool *Pool) *operator.Buffer {
	dstW := src.Width / 2
	if dstW < 1 {
		dstW = 1
	}
	dstH := src.Height / 2
	if dstH < 1 {
		dstH = 1
	}

	dst := pool.Get(dstW, dstH)

	at := func(x, y int) (r, g, b, a float32) {
		if x >= src.Width {
			x = src.Width - 1
		}
		if y >= src.Height {
			y = src.Height - 1
		}
		o := y*src.Stride + x*4
		return src.Data[o], src.Data[o+1], src.Data[o+2], src.Data[o+3]
	}

	for dy := 0; dy < dstH; dy++ {
		for dx := 0; dx < dstW; dx++ {
			sx, sy := dx*2, dy*2
			r0, g0, b0, a0 := at(sx, sy)
			r1, g1, b1, a1 := at(sx+1, sy)
			r2, g2, b2, a2 := at(sx, sy+1)
			r3, g3, b3, a3 := at(sx+1, sy+1)

			o := dy*dst.Stride + dx*4
			dst.Data[o] = (r0 + r1 + r2 + r3) / 4
			dst.Data[o+1] = (g0 + g1 + g2 + g3) / 4
			dst.Data[o+2] = (b0 + b1 + b2 + b3) / 4
			dst.Data[o+3] = (a0 + a1 + a2 + a3) / 4
		}
	}
	return dst
}

// Level returns the mipmap buffer at n, or nil if out of range.
func (m *MipmapChain) Level(n int) *operator.Buffer {
	if m == nil || n < 0 || n >= len(m.levels) {
		return nil
	}
	return m.levels[n]
}

// NumLevels returns the number of levels in the chain.
func (m *MipmapChain) NumLevels() int {
	if m == nil {
		return 0
	}
	return len(m.levels)
}

// LevelForScale picks the mipmap level closest to (but not smaller than)
// the requested display scale, computed as floor(-log2(scale)) and clamped
// to the chain's range. A scale >= 1.0 always selects level 0.
func (m *MipmapChain) LevelForScale(scale float64) *operator.Buffer {
	if m == nil || len(m.levels) == 0 {
		return nil
	}
	if scale >= 1.0 {
		return m.levels[0]
	}
	level := int(math.Floor(-math.Log2(scale)))
	if level < 0 {
		level = 0
	}
	if level >= len(m.levels) {
		level = len(m.levels) - 1
	}
	return m.levels[level]
}

// Release returns every level except level 0 (the caller-owned source
// buffer) to the pool. The chain must not be used afterward.
func (m *MipmapChain) Release() {
	if m == nil {
		return
	}
	for i := 1; i < len(m.levels); i++ {
		if m.levels[i] != nil {
			m.pool.Put(m.levels[i])
			m.levels[i] = nil
		}
	}
}
