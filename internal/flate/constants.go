package flate

// Alphabet sizes and match bounds from RFC 1951.
const (
	// NumLitLenCodes is the number of literal/length codes a dynamic block
	// may declare (symbols 286 and 287 exist only in the fixed code).
	NumLitLenCodes = 286
	// NumDistCodes is the number of distance codes a dynamic block may
	// declare (symbols 30 and 31 exist only in the fixed code).
	NumDistCodes = 30
	// NumClCodes is the size of the code-length alphabet (0..18).
	NumClCodes = 19

	// litLenAlphabet and distAlphabet size the adaptive trees. They follow
	// the fixed-code alphabets (288 and 32) so that the leaf regions have
	// headroom for the NYT chain even when every usable symbol occurs.
	litLenAlphabet = 288
	distAlphabet   = 32

	// EndOfBlock terminates every compressed block.
	EndOfBlock = 256

	// MinMatch and MaxMatch bound LZ77 back-reference lengths.
	MinMatch = 3
	MaxMatch = 258

	// MinWindowSize and MaxWindowSize bound the sliding window. The zlib
	// header encodes the window as a power of two in this range.
	MinWindowSize = 256
	MaxWindowSize = 32768

	// maxCodeLen is the longest Huffman code a dynamic block may use for
	// literal/length and distance symbols; maxClCodeLen bounds the
	// code-length alphabet's own code.
	maxCodeLen   = 15
	maxClCodeLen = 7
)

// lengthBase and lengthExtra map length codes 257..285 to their base length
// and extra-bit count (RFC 1951 §3.2.5 Table 1, indexed by code-257).
var lengthBase = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtra = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// distBase and distExtra map distance codes 0..29 to their base distance
// and extra-bit count (RFC 1951 §3.2.5 Table 2).
var distBase = [30]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577,
}

var distExtra = [30]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// clOrder is the fixed transmission order of the code-length alphabet's
// code lengths in a dynamic block header (RFC 1951 §3.2.7).
var clOrder = [NumClCodes]uint8{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// clExtra gives the extra-bit counts of the repeat codes 16, 17, 18.
var clExtra = [3]uint8{2, 3, 7}

// fixedLitLenLengths and fixedDistLengths describe the fixed Huffman codes
// of RFC 1951 §3.2.6.
var (
	fixedLitLenLengths [litLenAlphabet]uint8
	fixedDistLengths   [distAlphabet]uint8
)

func init() {
	for i := range fixedLitLenLengths {
		switch {
		case i < 144:
			fixedLitLenLengths[i] = 8
		case i < 256:
			fixedLitLenLengths[i] = 9
		case i < 280:
			fixedLitLenLengths[i] = 7
		default:
			fixedLitLenLengths[i] = 8
		}
	}
	for i := range fixedDistLengths {
		fixedDistLengths[i] = 5
	}
}
