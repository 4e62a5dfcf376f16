// Package signalbus implements the synchronous signal/event bus the
// develop controller and its pipelines publish state changes through
// (§4.H Signal/Event Bus).
package signalbus

import "sync"

// Topic names a class of signal. Topics are plain strings so callers can
// register application-specific ones without touching this package.
type Topic string

const (
	// PipelineChanged fires whenever a pipeline's output becomes stale or
	// a fresh output has been committed.
	PipelineChanged Topic = "pipeline-changed"
	// HistoryChanged fires whenever the history list's active prefix changes.
	HistoryChanged Topic = "history-changed"
	// ModuleRemoved fires once a module has been fully purged from history.
	ModuleRemoved Topic = "module-removed"
	// MipmapsUpdated fires when a cached image's mipmap chain is rebuilt.
	MipmapsUpdated Topic = "mipmaps-updated"
)

// The topics below are the named signals §4.H enumerates for the develop
// controller layer, published by develop.Controller and pipeline.Executor.
const (
	// TopicImageInfoChanged fires when an ImageRecord's catalogued
	// attributes change. The metadata cache's force-reload handler must
	// be registered first on this topic via MustSubscribeFirst.
	TopicImageInfoChanged Topic = "image-info-changed"
	// TopicDevelopImageChanged fires when the controller switches to a
	// different open image.
	TopicDevelopImageChanged Topic = "develop-image-changed"
	// TopicDevelopInitialize fires once after Engine/Controller init
	// completes.
	TopicDevelopInitialize Topic = "develop-initialize"
	// TopicDevelopHistoryWillChange fires immediately before a history
	// mutation is committed, while the old state is still readable.
	TopicDevelopHistoryWillChange Topic = "develop-history-will-change"
	// TopicDevelopHistoryChanged fires immediately after a history
	// mutation commits.
	TopicDevelopHistoryChanged Topic = "develop-history-changed"
	// TopicDevelopModuleRemove fires once a module instance has been
	// fully purged from the history and module list.
	TopicDevelopModuleRemove Topic = "develop-module-remove"
	// TopicDevelopUIPipeFinished fires when the main (full-resolution)
	// pipeline completes a render.
	TopicDevelopUIPipeFinished Topic = "develop-ui-pipe-finished"
	// TopicDevelopPreviewPipeFinished fires when the preview pipeline
	// completes a render.
	TopicDevelopPreviewPipeFinished Topic = "develop-preview-pipe-finished"
	// TopicMouseOverImageChanged fires when the hovered image in a grid
	// view changes.
	TopicMouseOverImageChanged Topic = "mouse-over-image-changed"
	// TopicSelectionChanged fires when the set of selected images changes.
	TopicSelectionChanged Topic = "selection-changed"
	// TopicTagChanged fires when an image's tag set changes.
	TopicTagChanged Topic = "tag-changed"
)

// Handler receives a published payload. Handlers run synchronously on the
// publishing goroutine, in subscription order; a handler that blocks
// blocks Publish itself, matching the source's in-process signal
// dispatch rather than a queued/async design.
type Handler func(payload any)

// Bus is a topic-keyed, ordered list of handlers. The zero value is not
// usable; construct with New.
type Bus struct {
	mu       sync.Mutex
	handlers map[Topic][]Handler
}

// New creates an empty signal bus.
func New() *Bus {
	return &Bus{handlers: make(map[Topic][]Handler)}
}

// Subscribe appends h to topic's handler list, returning an unsubscribe
// function.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
	idx := len(b.handlers[topic]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[topic]
		if idx < 0 || idx >= len(hs) {
			return
		}
		hs[idx] = nil
	}
}

// MustSubscribeFirst inserts h at the front of topic's handler list. Used
// by collaborators (e.g. the Engine's metadata-cache reload handler on
// TopicImageInfoChanged) that must observe a signal
// before any ordinary subscriber reacts to it, mirroring the source's
// practice of giving some internal listeners priority over plugins.
func (b *Bus) MustSubscribeFirst(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append([]Handler{h}, b.handlers[topic]...)
}

// Publish invokes every live handler subscribed to topic, in order,
// synchronously on the calling goroutine. A handler that panics is not
// recovered; panics propagate to the publisher, matching the source's
// treatment of signal callbacks as part of the caller's own call stack.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	hs := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(payload)
		}
	}
}

// HandlerCount reports how many live handlers are subscribed to topic.
func (b *Bus) HandlerCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.handlers[topic] {
		if h != nil {
			n++
		}
	}
	return n
}
