// Package zflate provides a pure Go DEFLATE compressor and decompressor
// with zlib framing.
//
// The implementation is self-contained and has no CGo dependencies, making
// it fully portable and easy to cross-compile.
//
// The package supports:
//   - Stored, fixed-Huffman, and dynamic-Huffman blocks (RFC 1951)
//   - Zlib container framing with Adler-32 validation (RFC 1950)
//   - Configurable sliding-window sizes from 256 to 32768 bytes
//   - A per-token statistics channel for compression analysis
//
// Basic usage for decompression:
//
//	data, err := zflate.Decompress(compressed, nil)
//
// Basic usage for compression:
//
//	err := zflate.Compress(writer, reader, &zflate.EncoderOptions{WindowSize: 32768})
package zflate
