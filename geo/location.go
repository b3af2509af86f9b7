// Package geo implements the fixed-point coordinate packing used by the
// node location store and the multipolygon way geometry index. Packing
// longitude/latitude into a single 64-bit integer keeps both on-disk and
// in-memory footprints predictable, the same trade-off the teacher's grid
// index makes when it stores coordinates as float32 pairs in its cell
// files (see index/grid_writer.go's writeNodeData).
package geo

import "math"

// PackedLocation is a quantized (lon, lat) pair, lon in the high 32 bits,
// lat in the low 32 bits. MISSING holds math.MinInt32 in both halves: it
// cannot be produced by Encode for any valid coordinate, since both halves
// of a valid encoding are signed int32 values bounded to
// [-(2^31-2), 2^31-2].
type PackedLocation uint64

// sentinelHalf is a bit pattern Encode can never produce for a valid
// coordinate: the quantization scales below leave math.MinInt32 just out
// of range on both halves, so MISSING cannot collide with a real encoding.
const sentinelHalf = int32(math.MinInt32)

// MISSING is returned by NodeLocationStore.Get for ids that were never put.
const MISSING PackedLocation = PackedLocation(uint64(uint32(sentinelHalf))<<32 | uint64(uint32(sentinelHalf)))

// Quantization scale: lon in [-180, 180], lat in [-90, 90] are mapped
// linearly onto the int32 range minus its minimum value, giving
// sub-centimeter precision at the equator while keeping math.MinInt32
// reserved for the MISSING sentinel.
const (
	lonScale = float64(1<<31-2) / 180.0
	latScale = float64(1<<31-2) / 90.0
)

// Encode packs a (lon, lat) pair into a PackedLocation. Round-trips through
// Decode within the quantization step implied by lonScale/latScale.
func Encode(lon, lat float64) PackedLocation {
	lonBits := uint32(int32(math.Round(lon * lonScale)))
	latBits := uint32(int32(math.Round(lat * latScale)))
	return PackedLocation(uint64(lonBits)<<32 | uint64(latBits))
}

// Decode unpacks a PackedLocation back into (lon, lat). Calling Decode on
// MISSING is a programmer error; callers must check against MISSING first.
func Decode(p PackedLocation) (lon, lat float64) {
	lonBits := int32(uint32(p >> 32))
	latBits := int32(uint32(p))
	return float64(lonBits) / lonScale, float64(latBits) / latScale
}
