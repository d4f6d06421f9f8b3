package flate

import (
	"bytes"
	"compress/zlib"
	"math/rand"
	"testing"
)

// zlibCompress produces a reference stream with the standard library for
// cross-checking the decoder.
func zlibCompress(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		t.Fatalf("zlib.NewWriterLevel: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestDecompress_StoredBlock(t *testing.T) {
	// Hand-built: header 78 01, final stored block, "abc", Adler-32.
	data := []byte{
		0x78, 0x01,
		0x01,       // BFINAL=1, BTYPE=00, padding
		0x03, 0x00, // LEN = 3
		0xfc, 0xff, // NLEN
		'a', 'b', 'c',
		0x02, 0x4d, 0x01, 0x27, // adler32("abc") big-endian
	}
	got, err := Decompress(data, false)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Errorf("Decompress = %q, want \"abc\"", got)
	}
}

func TestDecompress_EmptyStored(t *testing.T) {
	data := []byte{
		0x78, 0x01,
		0x01,
		0x00, 0x00,
		0xff, 0xff,
		0x00, 0x00, 0x00, 0x01, // adler32 of empty input
	}
	got, err := Decompress(data, false)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Decompress = %q, want empty", got)
	}
}

func TestDecompress_NullTerminate(t *testing.T) {
	data := []byte{
		0x78, 0x01,
		0x01, 0x03, 0x00, 0xfc, 0xff,
		'a', 'b', 'c',
		0x02, 0x4d, 0x01, 0x27,
	}
	got, err := Decompress(data, true)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, []byte("abc\x00")) {
		t.Errorf("Decompress = %q, want \"abc\\x00\"", got)
	}

	// Empty output also gains a terminator.
	empty := []byte{0x78, 0x01, 0x01, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}
	got, err = Decompress(empty, true)
	if err != nil {
		t.Fatalf("Decompress empty: %v", err)
	}
	if !bytes.Equal(got, []byte{0}) {
		t.Errorf("Decompress empty = %q, want a single NUL", got)
	}
}

func TestDecompress_HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{0x78, 0x01}, ErrTruncated},
		{"bad fcheck", []byte{0x78, 0x02, 0, 0, 0, 0, 0, 0}, ErrInvalidHeader},
		{"bad method", []byte{0x77, 0x09, 0, 0, 0, 0, 0, 0}, ErrInvalidMethod},
		{"bad window", []byte{0x88, 0x1c, 0, 0, 0, 0, 0, 0}, ErrInvalidWindow},
		{"preset dict", []byte{0x78, 0x20, 0, 0, 0, 0, 0, 0}, ErrPresetDictionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.data, false); err != tt.want {
				t.Errorf("Decompress = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecompress_BlockErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			"reserved block type",
			[]byte{0x78, 0x01, 0x07, 0x00, 0x00, 0x00, 0x01},
			ErrInvalidBlockType,
		},
		{
			"stored nlen mismatch",
			[]byte{0x78, 0x01, 0x01, 0x03, 0x00, 0x00, 0x00, 'a', 'b', 'c', 0, 0, 0, 1},
			ErrStoredLenMismatch,
		},
		{
			"stored truncated payload",
			[]byte{0x78, 0x01, 0x01, 0x0a, 0x00, 0xf5, 0xff, 'a', 0, 0, 0, 1},
			ErrTruncated,
		},
		{
			"checksum mismatch",
			[]byte{0x78, 0x01, 0x01, 0x03, 0x00, 0xfc, 0xff, 'a', 'b', 'c', 0, 0, 0, 9},
			ErrInvalidChecksum,
		},
		{
			"missing final block",
			[]byte{0x78, 0x01, 0x00, 0x00, 0x00, 0xff, 0xff, 0, 0, 0, 1},
			ErrTruncated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.data, false); err != tt.want {
				t.Errorf("Decompress = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecompress_InvalidDistance(t *testing.T) {
	// Fixed-Huffman block: length symbol 257 (len 3) with distance code 4
	// (dist 5) but only one byte of prior output.
	bw := newFixedBlockWriter()
	bw.literal('x')
	bw.match(3, 5)
	bw.endOfBlock()
	if _, err := Decompress(bw.finishZlib(0), false); err != ErrInvalidDistance {
		t.Errorf("Decompress = %v, want ErrInvalidDistance", err)
	}
}

func TestDecompress_ReferenceStreams(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	random := make([]byte, 70000)
	rng.Read(random)

	repetitive := bytes.Repeat([]byte("the quick brown fox "), 5000)

	long := make([]byte, 200000)
	for i := range long {
		long[i] = byte(i / 997)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x5a}},
		{"text", []byte("hello, hello, hello world")},
		{"random 70000", random},
		{"repetitive", repetitive},
		{"long runs", long},
		{"run of 300", bytes.Repeat([]byte{7}, 300)},
	}
	levels := []int{zlib.NoCompression, zlib.HuffmanOnly, zlib.BestSpeed, zlib.BestCompression}
	for _, tt := range tests {
		for _, level := range levels {
			stream := zlibCompress(t, tt.data, level)
			got, err := Decompress(stream, false)
			if err != nil {
				t.Fatalf("%s/level %d: Decompress: %v", tt.name, level, err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("%s/level %d: output differs (%d bytes, want %d)",
					tt.name, level, len(got), len(tt.data))
			}
		}
	}
}

// fixedBlockWriter hand-assembles a final fixed-Huffman block for decoder
// error tests.
type fixedBlockWriter struct {
	out  []byte
	acc  uint64
	used int
}

func newFixedBlockWriter() *fixedBlockWriter {
	f := &fixedBlockWriter{out: []byte{0x78, 0x01}}
	f.emit(1, 1) // BFINAL
	f.emit(1, 2) // fixed Huffman
	return f
}

func (f *fixedBlockWriter) emit(v uint32, n int) {
	f.acc |= uint64(v&(1<<uint(n)-1)) << uint(f.used)
	f.used += n
	for f.used >= 8 {
		f.out = append(f.out, byte(f.acc))
		f.acc >>= 8
		f.used -= 8
	}
}

func (f *fixedBlockWriter) literal(b byte) {
	lit, _ := fixedCodes()
	f.emit(uint32(lit[b]), int(fixedLitLenLengths[b]))
}

func (f *fixedBlockWriter) match(length, dist int) {
	lit, dc := fixedCodes()
	lc := lenCode(length)
	f.emit(uint32(lit[lc]), int(fixedLitLenLengths[lc]))
	li := lc - 257
	f.emit(uint32(length-int(lengthBase[li])), int(lengthExtra[li]))
	d := distCode(dist)
	f.emit(uint32(dc[d]), int(fixedDistLengths[d]))
	f.emit(uint32(dist-int(distBase[d])), int(distExtra[d]))
}

func (f *fixedBlockWriter) endOfBlock() {
	lit, _ := fixedCodes()
	f.emit(uint32(lit[EndOfBlock]), int(fixedLitLenLengths[EndOfBlock]))
}

// finishZlib frames the block as a complete zlib stream with the given
// Adler-32 value (these tests fail before the checksum is consulted).
func (f *fixedBlockWriter) finishZlib(adler uint32) []byte {
	if f.used > 0 {
		f.out = append(f.out, byte(f.acc))
		f.acc = 0
		f.used = 0
	}
	return append(f.out, byte(adler>>24), byte(adler>>16), byte(adler>>8), byte(adler))
}
