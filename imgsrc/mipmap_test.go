package imgsrc

import (
	"testing"

	"github.com/rawforge/develop/operator"
)

func solidBuffer(w, h int, r, g, b, a float32) *operator.Buffer {
	buf := &operator.Buffer{Width: w, Height: h, Stride: w * 4, Data: make([]float32, w*h*4)}
	for i := 0; i < w*h; i++ {
		o := i * 4
		buf.Data[o], buf.Data[o+1], buf.Data[o+2], buf.Data[o+3] = r, g, b, a
	}
	return buf
}

func TestGenerateLevel0AliasesSource(t *testing.T) {
	src := solidBuffer(8, 8, 1, 0, 0, 1)
	chain := Generate(src, nil)
	if chain.Level(0) != src {
		t.Fatal("expected level 0 to alias the source buffer")
	}
}

func TestGenerateNumLevels(t *testing.T) {
	src := solidBuffer(8, 8, 0, 0, 0, 0)
	chain := Generate(src, nil)
	// log2(8) = 3, +1 = 4 levels: 8x8, 4x4, 2x2, 1x1
	if chain.NumLevels() != 4 {
		t.Fatalf("NumLevels() = %d, want 4", chain.NumLevels())
	}
	if w, h := chain.Level(3).Width, chain.Level(3).Height; w != 1 || h != 1 {
		t.Fatalf("smallest level = %dx%d, want 1x1", w, h)
	}
}

func TestDownsamplePreservesSolidColor(t *testing.T) {
	src := solidBuffer(4, 4, 0.5, 0.25, 0.75, 1)
	chain := Generate(src, nil)
	lvl1 := chain.Level(1)
	if lvl1.Width != 2 || lvl1.Height != 2 {
		t.Fatalf("level 1 shape = %dx%d, want 2x2", lvl1.Width, lvl1.Height)
	}
	r, g, b, a := lvl1.Data[0], lvl1.Data[1], lvl1.Data[2], lvl1.Data[3]
	if r != 0.5 || g != 0.25 || b != 0.75 || a != 1 {
		t.Fatalf("box filter over solid color changed it: %v %v %v %v", r, g, b, a)
	}
}

func TestLevelForScale(t *testing.T) {
	src := solidBuffer(16, 16, 0, 0, 0, 0)
	chain := Generate(src, nil)
	if chain.LevelForScale(1.0) != chain.Level(0) {
		t.Fatal("scale 1.0 should select level 0")
	}
	if chain.LevelForScale(0.5) != chain.Level(1) {
		t.Fatal("scale 0.5 should select level 1")
	}
	if chain.LevelForScale(0.001) != chain.Level(chain.NumLevels()-1) {
		t.Fatal("tiny scale should clamp to the last level")
	}
}

func TestReleaseReturnsNonZeroLevelsToPool(t *testing.T) {
	pool := NewPool(4)
	src := solidBuffer(4, 4, 0, 0, 0, 0)
	chain := Generate(src, pool)
	level1 := chain.Level(1)
	chain.Release()

	reused := pool.Get(level1.Width, level1.Height)
	if reused != level1 {
		t.Fatal("expected Release to return level 1 to the pool")
	}
}

func TestGenerateNilOrEmptyReturnsNil(t *testing.T) {
	if Generate(nil, nil) != nil {
		t.Fatal("expected nil chain for nil source")
	}
	empty := &operator.Buffer{}
	if Generate(empty, nil) != nil {
		t.Fatal("expected nil chain for empty source")
	}
}
