package flate

// TokenStats is the per-token record emitted through the encoder's optional
// statistics callback. All fields are fixed-width so the record can be
// serialized as-is.
type TokenStats struct {
	// BytesProcessed counts source bytes consumed including this token.
	BytesProcessed uint32
	// LitOrLen is the literal byte value, or the match length.
	LitOrLen uint32
	// Dist is zero for literals, the back-reference distance for matches.
	Dist uint32
	// TreeBits estimates the dynamic-header cost of the current adaptive
	// code lengths (HLIT/HDIST/HCLEN fields plus the encoded code-length
	// sequence).
	TreeBits uint32
	// StreamBits is the weighted path length of both adaptive trees: the
	// bits the current block's tokens so far would occupy under the current
	// adaptive codes. The trees are reset at every block open.
	StreamBits uint32
}

// estimateTreeBits prices a dynamic header built from the adaptive trees'
// current depths. The depths stand in for code lengths and are clamped to
// the code-length alphabet's domain; a depth past the emission limit only
// skews the estimate, it never reaches the wire.
func (c *compressor) estimateTreeBits() int {
	var litLens [NumLitLenCodes]uint8
	for i := range litLens {
		litLens[i] = clampLen(c.llAHT.Depth(i))
	}
	var distLens [NumDistCodes]uint8
	for i := range distLens {
		distLens[i] = clampLen(c.dAHT.Depth(i))
	}
	return planHeader(litLens[:], distLens[:]).headerBits
}

func clampLen(d int) uint8 {
	if d > maxCodeLen {
		return maxCodeLen
	}
	return uint8(d)
}
