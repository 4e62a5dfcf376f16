package pipeline

import (
	"context"

	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/operator"
)

// HistoryReader is the read side of the controller's history list that the
// executor resyncs its graph against under a shared readers/writer lock
// (§4.F: "the history list is protected by a readers/writer lock; all
// executor resyncs take it in read mode").
type HistoryReader interface {
	RLock()
	RUnlock()
	Active() []history.Item
	Hash() uint64
}

// InputSource supplies the buffer a pipeline run reads from: the
// full-resolution source for FULL/EXPORT/THUMBNAIL pipelines, or a
// mipmap-leveled downscale for PREVIEW (§6, the "mipmap collaborator"
// contract). Returns an error wrapping errkind.ErrInputUnavailable when no
// usable buffer can be produced; the executor treats that as a silent skip
// rather than a failed render (§7 InputUnavailable).
type InputSource interface {
	Input(ctx context.Context, imageID int64, t PipelineType, requested operator.ROI) (*operator.Buffer, operator.ROI, error)
}

// BufferAllocator recycles output buffers across pipeline runs. imgsrc.Pool
// satisfies this directly.
type BufferAllocator interface {
	Get(width, height int) *operator.Buffer
	Put(buf *operator.Buffer)
}
