package flate

import (
	"encoding/binary"
	"hash/adler32"

	"github.com/deepteams/zflate/internal/bitio"
)

// decompressInitSize is the initial capacity of the output buffer.
const decompressInitSize = 256

// outBuf is an amortized output buffer; capacity is rounded to the next
// power of two when growing.
type outBuf struct {
	d []byte
}

func (o *outBuf) grow(n int) {
	need := len(o.d) + n
	if need <= cap(o.d) {
		return
	}
	c := cap(o.d)
	if c < decompressInitSize {
		c = decompressInitSize
	}
	for c < need {
		c <<= 1
	}
	nd := make([]byte, len(o.d), c)
	copy(nd, o.d)
	o.d = nd
}

func (o *outBuf) writeByte(b byte) {
	o.grow(1)
	o.d = append(o.d, b)
}

// extend appends n uninitialized bytes and returns the slice covering them.
func (o *outBuf) extend(n int) []byte {
	o.grow(n)
	o.d = o.d[:len(o.d)+n]
	return o.d[len(o.d)-n:]
}

// copyBack appends length bytes starting dist bytes back in the output.
// The ranges may overlap; a (length=5, dist=1) copy replicates the last
// byte five times, so the copy must run byte by byte.
func (o *outBuf) copyBack(dist, length int) {
	o.grow(length)
	pos := len(o.d)
	o.d = o.d[:pos+length]
	for i := 0; i < length; i++ {
		o.d[pos+i] = o.d[pos+i-dist]
	}
}

// decompressor holds the state of a single Decompress call.
type decompressor struct {
	r      *bitio.Reader
	out    outBuf
	window int // from the zlib header; distances must not exceed it
}

// Decompress inflates a complete zlib stream (RFC 1950 framing around RFC
// 1951 deflate data) and returns the decompressed bytes. With nullTerminate
// set, a trailing zero byte is appended unless one is already present.
func Decompress(data []byte, nullTerminate bool) ([]byte, error) {
	// 2 header bytes and the 4-byte Adler-32 trailer are the bare minimum.
	if len(data) < 6 {
		return nil, ErrTruncated
	}

	dec := &decompressor{}
	if err := dec.parseHeader(data[0], data[1]); err != nil {
		return nil, err
	}

	body := data[2 : len(data)-4]
	if len(body) == 0 {
		return nil, ErrTruncated
	}
	dec.r = bitio.NewReader(body)

	for {
		final, err := dec.readBlock()
		if err != nil {
			return nil, err
		}
		if final {
			break
		}
	}

	want := binary.BigEndian.Uint32(data[len(data)-4:])
	if adler32.Checksum(dec.out.d) != want {
		return nil, ErrInvalidChecksum
	}

	if nullTerminate && (len(dec.out.d) == 0 || dec.out.d[len(dec.out.d)-1] != 0) {
		dec.out.writeByte(0)
	}
	return dec.out.d, nil
}

// parseHeader validates the 2-byte CMF|FLG zlib header and records the
// declared window size.
func (d *decompressor) parseHeader(cmf, flg byte) error {
	if (uint32(cmf)*256+uint32(flg))%31 != 0 {
		return ErrInvalidHeader
	}
	if cmf&0x0f != 8 {
		return ErrInvalidMethod
	}
	cinfo := cmf >> 4
	if cinfo > 7 {
		return ErrInvalidWindow
	}
	if flg&0x20 != 0 {
		return ErrPresetDictionary
	}
	d.window = 1 << (cinfo + 8)
	return nil
}

// readBlock decodes one deflate block and reports whether it was final.
func (d *decompressor) readBlock() (bool, error) {
	final := d.r.ReadBit() == 1
	btype := d.r.ReadBits(2)
	if d.r.Err() != nil {
		return false, ErrTruncated
	}

	switch btype {
	case 0:
		return final, d.readStored()
	case 1:
		lit, dist := fixedTrees()
		return final, d.inflate(lit, dist)
	case 2:
		lit, dist, err := d.readDynamicTrees()
		if err != nil {
			return false, err
		}
		return final, d.inflate(lit, dist)
	default:
		return false, ErrInvalidBlockType
	}
}

// readStored copies a stored (uncompressed) block: byte-align, LEN and its
// one's complement NLEN, then LEN verbatim bytes.
func (d *decompressor) readStored() error {
	d.r.AlignByte()
	length := d.r.ReadBits(16)
	nlen := d.r.ReadBits(16)
	if d.r.Err() != nil {
		return ErrTruncated
	}
	if length != ^nlen&0xffff {
		return ErrStoredLenMismatch
	}
	d.r.ReadBytes(d.out.extend(int(length)))
	if d.r.Err() != nil {
		d.out.d = d.out.d[:len(d.out.d)-int(length)]
		return ErrTruncated
	}
	return nil
}

// readDynamicTrees reads the dynamic block header: the code-length
// alphabet's Huffman code, then the run-length-encoded literal/length and
// distance code lengths (a run may cross the boundary between the two).
func (d *decompressor) readDynamicTrees() (lit, dist *HTree, err error) {
	hlit := int(d.r.ReadBits(5)) + 257
	hdist := int(d.r.ReadBits(5)) + 1
	hclen := int(d.r.ReadBits(4)) + 4
	if d.r.Err() != nil {
		return nil, nil, ErrTruncated
	}
	if hlit > NumLitLenCodes {
		return nil, nil, ErrInvalidHeader
	}

	var clLens [NumClCodes]uint8
	for i := 0; i < hclen; i++ {
		clLens[clOrder[i]] = uint8(d.r.ReadBits(3))
	}
	if d.r.Err() != nil {
		return nil, nil, ErrTruncated
	}
	clTree, err := BuildHTree(clLens[:])
	if err != nil {
		return nil, nil, err
	}

	// hdist may name up to 32 codes; the two extra symbols build fine but
	// fail as InvalidSymbol if a token ever selects them.
	lens := make([]uint8, hlit+hdist)
	prev := -1
	for i := 0; i < len(lens); {
		sym, err := clTree.Lookup(d.r)
		if err != nil {
			return nil, nil, err
		}
		var value uint8
		run := 1
		switch {
		case sym < 16:
			value = uint8(sym)
		case sym == 16:
			if prev < 0 {
				return nil, nil, ErrInvalidCode
			}
			value = uint8(prev)
			run = 3 + int(d.r.ReadBits(2))
		case sym == 17:
			run = 3 + int(d.r.ReadBits(3))
		default: // 18
			run = 11 + int(d.r.ReadBits(7))
		}
		if d.r.Err() != nil {
			return nil, nil, ErrTruncated
		}
		if i+run > len(lens) {
			return nil, nil, ErrInvalidCode
		}
		for ; run > 0; run-- {
			lens[i] = value
			i++
		}
		prev = int(value)
	}

	lit, err = BuildHTree(lens[:hlit])
	if err != nil {
		return nil, nil, err
	}
	dist, err = BuildHTree(lens[hlit:])
	if err != nil {
		return nil, nil, err
	}
	return lit, dist, nil
}

// inflate expands literal and back-reference tokens until the end-of-block
// symbol.
func (d *decompressor) inflate(lit, dist *HTree) error {
	for {
		sym, err := lit.Lookup(d.r)
		if err != nil {
			return err
		}
		switch {
		case sym < EndOfBlock:
			d.out.writeByte(byte(sym))
		case sym == EndOfBlock:
			return nil
		case sym < 286:
			li := sym - 257
			length := int(lengthBase[li]) + int(d.r.ReadBits(int(lengthExtra[li])))
			dsym, err := dist.Lookup(d.r)
			if err != nil {
				return err
			}
			if dsym >= NumDistCodes {
				return ErrInvalidSymbol
			}
			dd := int(distBase[dsym]) + int(d.r.ReadBits(int(distExtra[dsym])))
			if d.r.Err() != nil {
				return ErrTruncated
			}
			if dd > len(d.out.d) || dd > d.window {
				return ErrInvalidDistance
			}
			d.out.copyBack(dd, length)
		default:
			return ErrInvalidSymbol
		}
	}
}
