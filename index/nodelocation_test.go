package index

import (
	"testing"

	"osmsort/geo"
	"osmsort/internal/testutil"
)

// TestNodeLocationStore_roundTripsAfterSeal is spec.md §8 property 5: a
// location put before Seal must come back unchanged from Get afterwards.
func TestNodeLocationStore_roundTripsAfterSeal(t *testing.T) {
	s := NewNodeLocationStore(t.TempDir())

	loc := geo.Encode(7.5, 51.25)
	testutil.AssertNil(t, s.Put(1, loc))
	testutil.AssertNil(t, s.Put(2, geo.Encode(-3.1, 10.0)))

	testutil.AssertNil(t, s.Seal())

	testutil.AssertEqual(t, loc, s.Get(1))

	gotLon, gotLat := geo.Decode(s.Get(1))
	wantLon, wantLat := geo.Decode(loc)
	testutil.AssertEqual(t, wantLon, gotLon)
	testutil.AssertEqual(t, wantLat, gotLat)
}

// TestNodeLocationStore_missingIdReturnsSentinel covers the "total
// function" contract: an id never put returns geo.MISSING, never an error.
func TestNodeLocationStore_missingIdReturnsSentinel(t *testing.T) {
	s := NewNodeLocationStore(t.TempDir())

	testutil.AssertNil(t, s.Put(1, geo.Encode(0, 0)))
	testutil.AssertNil(t, s.Seal())

	testutil.AssertEqual(t, geo.MISSING, s.Get(999))
}

// TestNodeLocationStore_emptyStoreReturnsSentinel covers Get before any Put
// ever happened for that shard at all (no shard file exists on disk).
func TestNodeLocationStore_emptyStoreReturnsSentinel(t *testing.T) {
	s := NewNodeLocationStore(t.TempDir())
	testutil.AssertNil(t, s.Seal())

	testutil.AssertEqual(t, geo.MISSING, s.Get(42))
}

// TestNodeLocationStore_putAfterSealFails enforces the build-then-seal
// lifecycle: once sealed, further writes are rejected rather than silently
// bypassing the now-sorted shard files.
func TestNodeLocationStore_putAfterSealFails(t *testing.T) {
	s := NewNodeLocationStore(t.TempDir())
	testutil.AssertNil(t, s.Seal())

	testutil.AssertNotNil(t, s.Put(1, geo.Encode(0, 0)))
}
