package undo

import "testing"

func TestKindFromModuleNameDispatch(t *testing.T) {
	cases := []struct {
		name string
		want Kind
		ok   bool
	}{
		{"lighttable", Lighttable, true},
		{"darkroom", Develop, true},
		{"map", Map, true},
		{"nonexistent", 0, false},
	}
	for _, c := range cases {
		got, ok := KindFromModuleName(c.name)
		if ok != c.ok {
			t.Fatalf("KindFromModuleName(%q) ok=%v, want %v", c.name, ok, c.ok)
		}
		if ok && got != c.want {
			t.Fatalf("KindFromModuleName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKindFromModuleNameKeepsDarkroomAndMapSeparate(t *testing.T) {
	// Regression guard against the source's dispatch bug: darkroom and map
	// must never collapse onto the same Kind even though a prior pass
	// over the source conflated them in one branch.
	dev, _ := KindFromModuleName("darkroom")
	m, _ := KindFromModuleName("map")
	if dev == m {
		t.Fatal("darkroom and map must map to distinct Kinds")
	}
}

func TestStartRecordEndGroupUndoRedo(t *testing.T) {
	var log []string
	replay := func(dir Direction, before, after any) {
		if dir == UndoDirection {
			log = append(log, "undo:"+before.(string))
		} else {
			log = append(log, "redo:"+after.(string))
		}
	}

	m := NewManager()
	m.StartGroup(Develop)
	m.Record(Develop, "a0", "a1", replay)
	m.Record(Develop, "b0", "b1", replay)
	m.EndGroup(Develop)

	if !m.CanUndo(Develop) {
		t.Fatal("expected CanUndo true after EndGroup")
	}
	if m.CanRedo(Develop) {
		t.Fatal("expected CanRedo false before any undo")
	}

	if !m.Undo(Develop) {
		t.Fatal("Undo returned false")
	}
	want := []string{"undo:b0", "undo:a0"}
	if len(log) != 2 || log[0] != want[0] || log[1] != want[1] {
		t.Fatalf("undo replay order = %v, want %v (reverse of record order)", log, want)
	}

	log = nil
	if !m.Redo(Develop) {
		t.Fatal("Redo returned false")
	}
	want = []string{"redo:a1", "redo:b1"}
	if len(log) != 2 || log[0] != want[0] || log[1] != want[1] {
		t.Fatalf("redo replay order = %v, want %v (forward order)", log, want)
	}
}

func TestRecordWithoutGroupIsSingleStep(t *testing.T) {
	m := NewManager()
	m.Record(Lighttable, "x0", "x1", func(Direction, any, any) {})
	if !m.CanUndo(Lighttable) {
		t.Fatal("expected a single-delta group to be undoable")
	}
}

func TestStartGroupPushClearsRedoStack(t *testing.T) {
	m := NewManager()
	m.StartGroup(Map)
	m.Record(Map, "a", "b", func(Direction, any, any) {})
	m.EndGroup(Map)
	m.Undo(Map)
	if !m.CanRedo(Map) {
		t.Fatal("expected redo available after undo")
	}

	m.StartGroup(Map)
	m.Record(Map, "c", "d", func(Direction, any, any) {})
	m.EndGroup(Map)
	if m.CanRedo(Map) {
		t.Fatal("expected redo stack cleared after a new group is pushed")
	}
}

func TestEndGroupWithNoRecordsIsNoop(t *testing.T) {
	m := NewManager()
	m.StartGroup(Ratings)
	m.EndGroup(Ratings)
	if m.CanUndo(Ratings) {
		t.Fatal("expected no undoable group from an empty StartGroup/EndGroup pair")
	}
}

func TestUndoRedoFalseWhenEmpty(t *testing.T) {
	m := NewManager()
	if m.Undo(Develop) {
		t.Fatal("expected Undo to return false on empty stack")
	}
	if m.Redo(Develop) {
		t.Fatal("expected Redo to return false on empty stack")
	}
}

func TestKindsAreIndependent(t *testing.T) {
	m := NewManager()
	m.Record(Lighttable, "a", "b", func(Direction, any, any) {})
	if m.CanUndo(Develop) {
		t.Fatal("expected Develop stack untouched by a Lighttable record")
	}
}
