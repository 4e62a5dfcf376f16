package metacache

import (
	"context"
	"sync"
	"testing"

	"github.com/rawforge/develop/history"
)

type fakeStore struct {
	mu   sync.Mutex
	recs map[ImageID]*Record
}

func newFakeStore() *fakeStore { return &fakeStore{recs: make(map[ImageID]*Record)} }

func (s *fakeStore) Load(ctx context.Context, id ImageID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return &Record{ID: id, Filename: "unknown.raw"}, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) Save(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.recs[r.ID] = &cp
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id ImageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

type fakeSidecar struct {
	mu      sync.Mutex
	written map[ImageID]*Record
}

func newFakeSidecar() *fakeSidecar { return &fakeSidecar{written: make(map[ImageID]*Record)} }

func (s *fakeSidecar) Write(ctx context.Context, r *Record, hist []history.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.written[r.ID] = &cp
	return nil
}

func (s *fakeSidecar) Read(ctx context.Context, path string) (*Record, []history.Item, error) {
	return nil, nil, nil
}

func TestSeedThenGetRoundTrip(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 10)

	seeded := &Record{ID: 7, Filename: "img0007.cr3", Width: 6000, Height: 4000}
	if out := c.Seed(seeded); out != SeedInserted {
		t.Fatalf("Seed = %v, want SeedInserted", out)
	}

	h, err := c.Get(context.Background(), 7, ReadMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := h.Record()
	if got.ID != seeded.ID || got.Filename != seeded.Filename || got.Width != seeded.Width {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, seeded)
	}
	if err := h.Release(context.Background(), Safe); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSeedTwiceReportsPresent(t *testing.T) {
	c := New(newFakeStore(), nil, 10)
	c.Seed(&Record{ID: 1, Filename: "a.raw"})
	if out := c.Seed(&Record{ID: 1, Filename: "b.raw"}); out != SeedPresent {
		t.Fatalf("second Seed = %v, want SeedPresent", out)
	}
}

func TestGetLoadsFromStoreOnMiss(t *testing.T) {
	store := newFakeStore()
	store.Save(context.Background(), &Record{ID: 3, Filename: "c.raw", Width: 100})
	c := New(store, nil, 10)

	h, err := c.Get(context.Background(), 3, ReadMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Record().Width != 100 {
		t.Fatalf("Width = %d, want 100", h.Record().Width)
	}
	h.Release(context.Background(), Minimal)
}

func TestReleaseSafeWritesBackToStoreAndSidecar(t *testing.T) {
	store := newFakeStore()
	sidecar := newFakeSidecar()
	c := New(store, sidecar, 10)
	c.Seed(&Record{ID: 5, Filename: "e.raw"})

	h, err := c.Get(context.Background(), 5, WriteMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h.Record().ChangedAt = h.Record().ImportedAt // trivial mutation
	h.Record().Width = 500
	if err := h.Release(context.Background(), Safe); err != nil {
		t.Fatalf("Release: %v", err)
	}

	store.mu.Lock()
	saved := store.recs[5]
	store.mu.Unlock()
	if saved == nil || saved.Width != 500 {
		t.Fatalf("expected store to be updated, got %+v", saved)
	}

	sidecar.mu.Lock()
	written := sidecar.written[5]
	sidecar.mu.Unlock()
	if written == nil || written.Width != 500 {
		t.Fatalf("expected sidecar write, got %+v", written)
	}
}

func TestReleaseMinimalDiscardsPendingWrite(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 10)
	c.Seed(&Record{ID: 9, Filename: "i.raw", Width: 10})

	h, _ := c.Get(context.Background(), 9, WriteMode)
	h.Record().Width = 9999
	h.Release(context.Background(), Minimal)

	store.mu.Lock()
	_, saved := store.recs[9]
	store.mu.Unlock()
	if saved {
		t.Fatal("expected Minimal release not to write back to the store")
	}
}

func TestNegativeIDReturnsFreshUncachedRecord(t *testing.T) {
	c := New(newFakeStore(), nil, 10)
	h, err := c.Get(context.Background(), -1, WriteMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Record().ID != -1 {
		t.Fatalf("ID = %d, want -1", h.Record().ID)
	}
	if c.Stats().Len != 0 {
		t.Fatal("expected negative id not to populate the cache")
	}
}

func TestTryGetMissWhenAbsent(t *testing.T) {
	c := New(newFakeStore(), nil, 10)
	if _, ok := c.TryGet(42, ReadMode); ok {
		t.Fatal("expected TryGet to miss for an absent id")
	}
}

func TestRemoveDropsEntryWithoutDeletingFromStore(t *testing.T) {
	store := newFakeStore()
	store.Save(context.Background(), &Record{ID: 2, Filename: "b.raw"})
	c := New(store, nil, 10)
	c.Get(context.Background(), 2, ReadMode)

	if !c.Remove(2) {
		t.Fatal("expected Remove to report true for a present entry")
	}
	store.mu.Lock()
	_, stillThere := store.recs[2]
	store.mu.Unlock()
	if !stillThere {
		t.Fatal("Remove must not delete from the backing store")
	}
}

func TestEvictionBoundByMaxEntries(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 2)
	for i := ImageID(1); i <= 5; i++ {
		h, err := c.Get(context.Background(), i, ReadMode)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		h.Release(context.Background(), Minimal)
	}
	if c.Stats().Len > 2 {
		t.Fatalf("Len = %d, want <= 2", c.Stats().Len)
	}
}

func TestEvictionSkipsRefcountedEntries(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 1)
	h1, _ := c.Get(context.Background(), 1, ReadMode) // held open, refcount stays 1
	h2, err := c.Get(context.Background(), 2, ReadMode)
	if err != nil {
		t.Fatalf("Get(2): %v", err)
	}
	h2.Release(context.Background(), Minimal)

	h1b, ok := c.TryGet(1, ReadMode)
	if !ok {
		t.Fatal("expected entry 1 to survive eviction while its handle is held")
	}
	h1b.Release(context.Background(), Minimal)
	h1.Release(context.Background(), Minimal)
}

func TestStampTimestampsWriteBack(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 10)
	c.Seed(&Record{ID: 11, Filename: "k.raw"})

	if err := c.SetExportTimestamp(context.Background(), 11); err != nil {
		t.Fatalf("SetExportTimestamp: %v", err)
	}
	store.mu.Lock()
	exported := store.recs[11].ExportedAt
	store.mu.Unlock()
	if exported.IsZero() {
		t.Fatal("expected ExportedAt to be stamped and persisted")
	}
}

func TestInvalidRejectsMissingIdentity(t *testing.T) {
	if !Invalid(&Record{ID: 0, Filename: "x"}) {
		t.Fatal("expected id<=0 to be invalid")
	}
	if !Invalid(&Record{ID: 1, Filename: ""}) {
		t.Fatal("expected empty filename to be invalid")
	}
	if Invalid(&Record{ID: 1, Filename: "x"}) {
		t.Fatal("expected well-formed record to be valid")
	}
}

func TestFlagsRatingDisjointFromOtherFlags(t *testing.T) {
	f := Flags(0).WithRating(4) | FlagRejected | FlagHasTxt
	if f.Rating() != 4 {
		t.Fatalf("Rating() = %d, want 4", f.Rating())
	}
	if !f.Has(FlagRejected) || !f.Has(FlagHasTxt) {
		t.Fatal("expected both flag bits to remain set alongside the rating")
	}
}

func TestNFCNormalizationAppliedOnLoad(t *testing.T) {
	store := newFakeStore()
	// "e" + combining acute accent (NFD form)
	decomposed := "café.raw"
	store.Save(context.Background(), &Record{ID: 20, Filename: decomposed})
	c := New(store, nil, 10)

	h, err := c.Get(context.Background(), 20, ReadMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	precomposed := "café.raw"
	if h.Record().Filename != precomposed {
		t.Fatalf("Filename = %q, want NFC form %q", h.Record().Filename, precomposed)
	}
	h.Release(context.Background(), Minimal)
}
