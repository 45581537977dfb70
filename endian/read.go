package endian

// ForLittle selects the EndianEngine matching the SAS little-endian flag.
func ForLittle(little bool) EndianEngine {
	if little {
		return GetLittleEndianEngine()
	}
	return GetBigEndianEngine()
}

// ReadU16 reads a little/big-endian uint16 from the head of data.
// It panics if data is shorter than 2 bytes, mirroring the standard
// library's own bounds behaviour for Uint16; callers are expected to have
// already bounds-checked the slice against the declared field width.
func ReadU16(e EndianEngine, data []byte) uint16 {
	return e.Uint16(data)
}

// ReadU32 reads a little/big-endian uint32 from the head of data.
func ReadU32(e EndianEngine, data []byte) uint32 {
	return e.Uint32(data)
}

// ReadU64 reads a little/big-endian uint64 from the head of data.
func ReadU64(e EndianEngine, data []byte) uint64 {
	return e.Uint64(data)
}

// ReadF64 reads a little/big-endian IEEE-754 double from the head of data.
func ReadF64(e EndianEngine, data []byte) float64 {
	return Float64frombits(e.Uint64(data))
}

// Float64frombits is a small re-export of math.Float64frombits to keep
// callers importing endian instead of needing both endian and math.
func Float64frombits(bits uint64) float64 {
	return float64frombits(bits)
}
