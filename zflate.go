// Package zflate implements a DEFLATE codec (RFC 1951) with zlib framing
// (RFC 1950).
//
// The encoder finds LZ77 back-references with a hash-chain search over a
// rotating two-window buffer and models symbol frequencies with adaptive
// Huffman trees (Vitter's Algorithm V); each sliding-window flush becomes
// one compressed block, emitted with whichever of dynamic-Huffman,
// fixed-Huffman, or stored framing is cheapest. The decoder inflates all
// three block types and validates the Adler-32 trailer.
package zflate

import (
	"fmt"
	"io"

	"github.com/deepteams/zflate/internal/flate"
)

// DefaultWindowSize is the sliding-window size used when EncoderOptions
// leaves WindowSize zero. It is the largest window zlib framing can declare.
const DefaultWindowSize = flate.MaxWindowSize

// Errors returned by the codec. Every failure is fatal to the operation
// that produced it: no partial output is returned. Use errors.Is to test
// for them; wrapped errors keep their identity.
var (
	ErrTruncated                = error(flate.ErrTruncated)
	ErrInvalidHeader            = error(flate.ErrInvalidHeader)
	ErrInvalidChecksum          = error(flate.ErrInvalidChecksum)
	ErrInvalidSymbol            = error(flate.ErrInvalidSymbol)
	ErrInvalidCode              = error(flate.ErrInvalidCode)
	ErrAmbiguousCode            = error(flate.ErrAmbiguousCode)
	ErrInvalidDistance          = error(flate.ErrInvalidDistance)
	ErrInvalidBlockType         = error(flate.ErrInvalidBlockType)
	ErrStoredLenMismatch        = error(flate.ErrStoredLenMismatch)
	ErrPresetDictionary         = error(flate.ErrPresetDictionary)
	ErrInvalidWindow            = error(flate.ErrInvalidWindow)
	ErrInvalidCompressionMethod = error(flate.ErrInvalidMethod)
)

// TokenStats is the per-token record delivered through
// EncoderOptions.Stats.
type TokenStats = flate.TokenStats

// DecoderOptions configures Decompress. A nil options value selects the
// defaults.
type DecoderOptions struct {
	// NullTerminate appends a trailing zero byte to the output when it does
	// not already end in one. Callers handing the result to C-string-style
	// consumers use this to avoid a copy.
	NullTerminate bool
}

// EncoderOptions configures Compress. A nil options value selects the
// defaults.
type EncoderOptions struct {
	// WindowSize is the LZ77 sliding-window size: a power of two between
	// 256 and 32768. Zero selects DefaultWindowSize.
	WindowSize int

	// Stats, when non-nil, receives one TokenStats record per token the
	// encoder emits. Intended for analysis harnesses; it is never required
	// for correct operation.
	Stats func(TokenStats)
}

// Decompress inflates a complete zlib stream and returns the decompressed
// bytes.
func Decompress(data []byte, o *DecoderOptions) ([]byte, error) {
	var nullTerminate bool
	if o != nil {
		nullTerminate = o.NullTerminate
	}
	out, err := flate.Decompress(data, nullTerminate)
	if err != nil {
		return nil, fmt.Errorf("zflate: decompressing: %w", err)
	}
	return out, nil
}

// Compress deflates everything from src and writes a complete zlib stream
// to dst. The stream is written only after the whole input has been
// encoded, so dst never observes partial output on error.
func Compress(dst io.Writer, src io.Reader, o *EncoderOptions) error {
	var windowSize int
	var stats func(TokenStats)
	if o != nil {
		windowSize = o.WindowSize
		stats = o.Stats
	}
	if err := flate.Compress(dst, src, windowSize, stats); err != nil {
		return fmt.Errorf("zflate: compressing: %w", err)
	}
	return nil
}
