package geo

import (
	"osmsort/internal/testutil"
	"testing"
)

func TestEncodeDecode_roundTrip(t *testing.T) {
	cases := []struct {
		lon, lat float64
	}{
		{0, 0},
		{9.99, 53.55},
		{-179.999, -89.999},
		{179.999, 89.999},
		{-8.38e-8, -8.38e-8}, // halves encode to -1 and -2 (near all-ones bits), must not be taken for MISSING
	}

	for _, c := range cases {
		encoded := Encode(c.lon, c.lat)
		testutil.AssertTrue(t, encoded != MISSING)

		lon, lat := Decode(encoded)
		testutil.AssertApprox(t, c.lon, lon, 1e-4)
		testutil.AssertApprox(t, c.lat, lat, 1e-4)
	}
}

func TestMissing_isSentinel(t *testing.T) {
	testutil.AssertTrue(t, MISSING != Encode(0, 0))
	testutil.AssertTrue(t, MISSING != Encode(-180, -90))
	testutil.AssertTrue(t, MISSING != Encode(180, 90))
}
