package endian

import "math"

func float64frombits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
