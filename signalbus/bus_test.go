package signalbus

import "testing"

func TestPublishDispatchesInSubscriptionOrder(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(PipelineChanged, func(any) { order = append(order, 1) })
	b.Subscribe(PipelineChanged, func(any) { order = append(order, 2) })
	b.Subscribe(PipelineChanged, func(any) { order = append(order, 3) })
	b.Publish(PipelineChanged, nil)
	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPublishPassesPayload(t *testing.T) {
	b := New()
	var got any
	b.Subscribe(HistoryChanged, func(p any) { got = p })
	b.Publish(HistoryChanged, 42)
	if got != 42 {
		t.Fatalf("got = %v, want 42", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	unsub := b.Subscribe(ModuleRemoved, func(any) { calls++ })
	b.Publish(ModuleRemoved, nil)
	unsub()
	b.Publish(ModuleRemoved, nil)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestMustSubscribeFirstRunsBeforeOthers(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(MipmapsUpdated, func(any) { order = append(order, "late") })
	b.MustSubscribeFirst(MipmapsUpdated, func(any) { order = append(order, "priority") })
	b.Publish(MipmapsUpdated, nil)
	if len(order) != 2 || order[0] != "priority" || order[1] != "late" {
		t.Fatalf("order = %v, want [priority late]", order)
	}
}

func TestHandlerCountReflectsUnsubscribe(t *testing.T) {
	b := New()
	unsub := b.Subscribe(PipelineChanged, func(any) {})
	b.Subscribe(PipelineChanged, func(any) {})
	if n := b.HandlerCount(PipelineChanged); n != 2 {
		t.Fatalf("HandlerCount = %d, want 2", n)
	}
	unsub()
	if n := b.HandlerCount(PipelineChanged); n != 1 {
		t.Fatalf("HandlerCount after unsubscribe = %d, want 1", n)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	calls := 0
	b.Subscribe(PipelineChanged, func(any) { calls++ })
	b.Publish(HistoryChanged, nil)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (unrelated topic published)", calls)
	}
}
