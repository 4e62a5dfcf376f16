package imgsrc

import (
	"testing"
)

func TestResizeSameSizeReturnsSameBuffer(t *testing.T) {
	src := solidBuffer(8, 8, 0.2, 0.4, 0.6, 1)
	if got := Resize(src, 8, 8); got != src {
		t.Fatal("expected Resize to return src unchanged when already the target size")
	}
}

func TestResizeNilReturnsNil(t *testing.T) {
	if got := Resize(nil, 4, 4); got != nil {
		t.Fatal("expected Resize(nil, ...) to return nil")
	}
}

func TestResizeChangesDimensions(t *testing.T) {
	src := solidBuffer(16, 16, 0.5, 0.5, 0.5, 1)
	got := Resize(src, 5, 7)
	if got.Width != 5 || got.Height != 7 {
		t.Fatalf("Resize dims = %dx%d, want 5x7", got.Width, got.Height)
	}
	if len(got.Data) != 5*7*4 {
		t.Fatalf("Resize data length = %d, want %d", len(got.Data), 5*7*4)
	}
}

func TestResizePreservesSolidColor(t *testing.T) {
	src := solidBuffer(10, 10, 0.25, 0.75, 0.5, 1)
	got := Resize(src, 3, 3)
	for i := 0; i < got.Width*got.Height; i++ {
		o := i * 4
		r, g, b, a := got.Data[o], got.Data[o+1], got.Data[o+2], got.Data[o+3]
		if !approxEqual(r, 0.25) || !approxEqual(g, 0.75) || !approxEqual(b, 0.5) || !approxEqual(a, 1) {
			t.Fatalf("pixel %d = %v %v %v %v, want ~0.25 0.75 0.5 1", i, r, g, b, a)
		}
	}
}

func TestResizeUpscale(t *testing.T) {
	src := solidBuffer(2, 2, 0.1, 0.2, 0.3, 1)
	got := Resize(src, 9, 4)
	if got.Width != 9 || got.Height != 4 {
		t.Fatalf("Resize dims = %dx%d, want 9x4", got.Width, got.Height)
	}
}

func approxEqual(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 0.02
}
