package history

import "testing"

func TestAppendAdvancesEnd(t *testing.T) {
	l := New()
	i0 := l.Append(Item{ModuleName: "exposure", Params: []byte{1}})
	i1 := l.Append(Item{ModuleName: "contrast", Params: []byte{2}})
	if i0 != 0 || i1 != 1 {
		t.Fatalf("unexpected indices %d %d", i0, i1)
	}
	if l.End() != 2 || l.Len() != 2 {
		t.Fatalf("End()=%d Len()=%d, want 2,2", l.End(), l.Len())
	}
}

func TestSetEndTruncatesThenAppendDiscardsRedoTail(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "a"})
	l.Append(Item{ModuleName: "b"})
	l.Append(Item{ModuleName: "c"})
	l.SetEnd(1) // undo twice
	if l.End() != 1 {
		t.Fatalf("End()=%d, want 1", l.End())
	}
	l.Append(Item{ModuleName: "d"})
	if l.Len() != 2 {
		t.Fatalf("Len()=%d, want 2 (redo tail discarded)", l.Len())
	}
	active := l.Active()
	if len(active) != 2 || active[1].ModuleName != "d" {
		t.Fatalf("unexpected active prefix: %+v", active)
	}
}

func TestHashChangesWithParams(t *testing.T) {
	l1 := New()
	l1.Append(Item{ModuleName: "exposure", Params: []byte{1, 2, 3}})

	l2 := New()
	l2.Append(Item{ModuleName: "exposure", Params: []byte{1, 2, 4}})

	if l1.Hash() == l2.Hash() {
		t.Fatal("expected different hashes for different params")
	}
}

func TestHashStableForEqualPrefix(t *testing.T) {
	l1 := New()
	l1.Append(Item{ModuleName: "exposure", Params: []byte{9}})
	l1.Append(Item{ModuleName: "contrast", Params: []byte{1}})

	l2 := New()
	l2.Append(Item{ModuleName: "exposure", Params: []byte{9}})
	l2.Append(Item{ModuleName: "contrast", Params: []byte{1}})

	if l1.Hash() != l2.Hash() {
		t.Fatal("expected equal hashes for identical active prefixes")
	}
}

func TestHashIgnoresRedoTail(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "a"})
	before := l.Hash()
	l.Append(Item{ModuleName: "b"})
	l.SetEnd(1)
	if l.Hash() != before {
		t.Fatal("hash over active prefix should match earlier identical prefix")
	}
}

func TestInsertAfterLandsAdjacentToBase(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "exposure"})
	l.Append(Item{ModuleName: "contrast"})
	l.Append(Item{ModuleName: "sharpen"})

	at := l.InsertAfter(1, Item{ModuleName: "contrast", MultiPriority: 1})
	if at != 2 {
		t.Fatalf("InsertAfter returned index %d, want 2", at)
	}

	active := l.Active()
	names := make([]string, len(active))
	for i, it := range active {
		names[i] = it.ModuleName
	}
	want := []string{"exposure", "contrast", "contrast", "sharpen"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Active() order = %v, want %v", names, want)
		}
	}
	if l.End() != 4 || l.Len() != 4 {
		t.Fatalf("End()=%d Len()=%d, want 4,4", l.End(), l.Len())
	}
}

func TestInsertAfterMinusOneInsertsAtFront(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "contrast"})
	l.InsertAfter(-1, Item{ModuleName: "exposure"})

	active := l.Active()
	if len(active) != 2 || active[0].ModuleName != "exposure" || active[1].ModuleName != "contrast" {
		t.Fatalf("unexpected order: %+v", active)
	}
}

func TestInsertAfterDiscardsRedoTail(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "a"})
	l.Append(Item{ModuleName: "b"})
	l.SetEnd(1) // undo once; "b" is now a redo tail
	l.InsertAfter(0, Item{ModuleName: "c"})

	if l.Len() != 2 {
		t.Fatalf("Len()=%d, want 2 (redo tail discarded)", l.Len())
	}
	active := l.Active()
	if active[1].ModuleName != "c" {
		t.Fatalf("unexpected active prefix: %+v", active)
	}
}

func TestRemoveRefsAdjustsEnd(t *testing.T) {
	l := New()
	l.Append(Item{ModuleName: "exposure"})
	l.Append(Item{ModuleName: "sharpen"})
	l.Append(Item{ModuleName: "exposure"})
	removed := l.RemoveRefs("exposure")
	if removed != 2 {
		t.Fatalf("removed=%d, want 2", removed)
	}
	if l.Len() != 1 || l.End() != 1 {
		t.Fatalf("Len()=%d End()=%d, want 1,1", l.Len(), l.End())
	}
	active := l.Active()
	if active[0].ModuleName != "sharpen" {
		t.Fatalf("unexpected survivor: %+v", active)
	}
}
