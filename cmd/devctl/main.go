// Command devctl drives a synthetic image through the develop engine end to
// end: it loads a generated source buffer, applies a canned history, runs
// both pipelines to completion, and reports timing and cache statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/rawforge/develop"
	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/imgsrc"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pipeline"
)

func main() {
	var (
		width   = flag.Int("width", 4096, "synthetic source image width")
		height  = flag.Int("height", 2731, "synthetic source image height")
		viewW   = flag.Int("viewport-width", 1280, "GUI viewport width")
		viewH   = flag.Int("viewport-height", 800, "GUI viewport height")
		timeout = flag.Duration("timeout", 5*time.Second, "maximum time to wait for both pipelines to settle")
	)
	flag.Parse()

	registry := operator.NewRegistry()
	registerDemoModules(registry)

	cfg := config.Default()
	engine, err := develop.NewEngine(
		develop.WithConfig(cfg),
		develop.WithRegistry(registry),
		develop.WithSource(&syntheticSource{width: *width, height: *height}),
	)
	if err != nil {
		log.Fatalf("devctl: new engine: %v", err)
	}

	ctrl := develop.NewController(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)
	defer ctrl.Stop()

	start := time.Now()
	if err := ctrl.LoadImage(ctx, 1); err != nil {
		log.Fatalf("devctl: load image: %v", err)
	}
	ctrl.SetViewport(*viewW, *viewH, 1)

	for _, it := range cannedHistory() {
		ctrl.AppendHistory(it)
	}

	deadline := time.Now().Add(*timeout)
	var previewDone, mainDone time.Time
	for time.Now().Before(deadline) && (previewDone.IsZero() || mainDone.IsZero()) {
		if previewDone.IsZero() && ctrl.PreviewStatus() == pipeline.Valid {
			previewDone = time.Now()
		}
		if mainDone.IsZero() && ctrl.MainStatus() == pipeline.Valid {
			mainDone = time.Now()
		}
		time.Sleep(2 * time.Millisecond)
	}

	if ctrl.MainStatus() != pipeline.Valid || ctrl.PreviewStatus() != pipeline.Valid {
		log.Fatalf("devctl: pipelines did not settle within %s (main=%v preview=%v)", *timeout, ctrl.MainStatus(), ctrl.PreviewStatus())
	}

	fmt.Printf("preview settled after %s\n", previewDone.Sub(start))
	fmt.Printf("main settled after %s\n", mainDone.Sub(start))
	fmt.Printf("history length: %d, active modules: %d\n", ctrl.HistoryEnd(), len(ctrl.Modules()))

	if buf := ctrl.MainBackbuf(); buf != nil {
		fmt.Printf("main backbuf: %dx%d\n", buf.Width, buf.Height)
	}
	if buf := ctrl.PreviewBackbuf(); buf != nil {
		fmt.Printf("preview backbuf: %dx%d\n", buf.Width, buf.Height)
	}

	stats := engine.Pixels.Stats()
	fmt.Printf("pixel cache: hits=%d misses=%d evictions=%d entries=%d size=%d/%d bytes\n",
		stats.Hits, stats.Misses, stats.Evictions, stats.Entries, stats.Size, stats.MaxSize)
}

// cannedHistory is a fixed three-module edit stack exercising the demo
// operators registered below.
func cannedHistory() []history.Item {
	return []history.Item{
		{ModuleName: "exposure", Enabled: true, Params: encodeFloat(0.6)},
		{ModuleName: "contrast", Enabled: true, Params: encodeFloat(1.2)},
		{ModuleName: "sharpen", Enabled: true, Params: encodeFloat(0.4)},
	}
}

func encodeFloat(v float32) []byte {
	bits := float32bits(v)
	return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func float32bits(v float32) uint32 {
	return uint32(v * 1e6)
}

// syntheticSource fabricates a gradient buffer in place of a real raw
// decoder, giving the demo a deterministic source image of any requested
// size without depending on external test fixtures.
type syntheticSource struct{ width, height int }

func (s *syntheticSource) Decode(imgsrc.Handle) (*operator.Buffer, error) {
	w, h := s.width, s.height
	buf := &operator.Buffer{Width: w, Height: h, Stride: w * 4, Data: make([]float32, w*h*4)}
	for y := 0; y < h; y++ {
		v := float32(y) / float32(h)
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			buf.Data[i+0] = v
			buf.Data[i+1] = float32(x) / float32(w)
			buf.Data[i+2] = 1 - v
			buf.Data[i+3] = 1
		}
	}
	return buf, nil
}

func (s *syntheticSource) Dimensions(imgsrc.Handle) (int, int, bool) {
	return s.width, s.height, true
}
