package flate

import (
	"hash"
	"hash/adler32"
	"io"
	"math/bits"
	"sync"

	"github.com/deepteams/zflate/internal/bitio"
	"github.com/deepteams/zflate/internal/pool"
)

// LZ77 duplicate-string search over a rotating two-window buffer.
//
// The buffer holds 2w+2 bytes:
//
//	+---------------------------------+---------------------------------+---+---+
//	|          former window          |          current window         | A | B |
//	+---------------------------------+---------------------------------+---+---+
//
// The current window is scanned position by position; each processed byte is
// copied into the former window so that back-references can reach the full
// preceding w bytes. The hash key covers three consecutive bytes, so the two
// spill slots A and B hold the look-ahead needed to hash the last positions
// of the window; they are the first two bytes of the next window and slide
// into place when the windows rotate.
//
// A hash chain indexes the window: heads[h] records the newest position
// whose 3-byte key hashes to h together with the live chain length, and
// next[p] links each position to the previous occurrence. The newest w
// positions are kept: inserting a position prepends it to its bucket, and
// the same position one window later shortens the bucket by one, so the
// oldest occurrence falls off.

const hashSize = 1024

type chainHead struct {
	head uint16
	n    int32
}

// token is one element of a block's token stream: a literal byte when dist
// is zero (value in len), otherwise a (length, distance) back-reference.
type token struct {
	len  uint16
	dist uint16
}

// blockSnap captures a finished block: its tokens, the raw bytes they cover
// (for the stored fallback), and the adaptive trees' frequency vectors at
// block close. Emission is deferred until the next window fill reveals
// whether the block is final.
type blockSnap struct {
	tokens []token
	raw    []byte
	llW    [NumLitLenCodes]uint32
	dW     [NumDistCodes]uint32
}

type compressor struct {
	src io.Reader
	bw  *bitio.Writer
	w   int

	buf       []byte // former window, current window, two spill bytes
	ahead     []byte // landing area for match extension past the window edge
	aheadLen  int
	readAhead bool

	heads []chainHead
	next  []uint16

	llAHT *AHT
	dAHT  *AHT

	tokens  []token
	raw     []byte
	pending *blockSnap

	// deferred holds carry positions whose chain insert waits for the next
	// window fill to load their hash look-ahead bytes.
	deferred []int

	digest      hash.Hash32
	loaded      int // valid bytes in the current window region
	firstWindow bool
	srcEOF      bool
	err         error

	stats     func(TokenStats)
	processed uint32
}

// Compress deflates src into dst as a zlib stream using the given sliding
// window size (a power of two in [MinWindowSize, MaxWindowSize]; zero
// selects MaxWindowSize). The optional stats callback receives one record
// per emitted token. Output is written only on success.
func Compress(dst io.Writer, src io.Reader, windowSize int, stats func(TokenStats)) error {
	w := windowSize
	if w == 0 {
		w = MaxWindowSize
	}
	if w < MinWindowSize || w > MaxWindowSize || w&(w-1) != 0 {
		return ErrInvalidWindow
	}

	buf := pool.Get(2*w + 2)
	defer pool.Put(buf)
	raw := pool.Get(w + MaxMatch)
	defer pool.Put(raw)
	next := pool.GetUint16(w)
	defer pool.PutUint16(next)

	c := &compressor{
		src:         src,
		bw:          bitio.NewWriter(4096),
		w:           w,
		buf:         buf,
		ahead:       make([]byte, MaxMatch-2),
		heads:       make([]chainHead, hashSize),
		next:        next,
		llAHT:       NewAHT(litLenAlphabet),
		dAHT:        NewAHT(distAlphabet),
		raw:         raw[:0],
		digest:      adler32.New(),
		firstWindow: true,
		stats:       stats,
	}

	// Zlib header: CMF carries the window size, FLG's check bits make
	// CMF*256+FLG a multiple of 31. FLEVEL 2, no preset dictionary.
	cinfo := uint32(bits.TrailingZeros(uint(w)) - 8)
	cmf := cinfo<<4 | 8
	flg := uint32(2 << 6)
	if rem := (cmf*256 + flg) % 31; rem != 0 {
		flg += 31 - rem
	}
	c.bw.WriteBits(cmf, 8)
	c.bw.WriteBits(flg, 8)

	if err := c.run(); err != nil {
		return err
	}

	c.bw.AlignByte()
	sum := c.digest.Sum32()
	c.bw.WriteBits(sum>>24, 8)
	c.bw.WriteBits(sum>>16, 8)
	c.bw.WriteBits(sum>>8, 8)
	c.bw.WriteBits(sum, 8)

	_, err := dst.Write(c.bw.Finish())
	return err
}

// cur returns the current window region (w+2 bytes including the spill).
func (c *compressor) cur() []byte {
	return c.buf[c.w:]
}

// fetch reads into p until it is full or the source is exhausted.
func (c *compressor) fetch(p []byte) int {
	if c.srcEOF || c.err != nil {
		return 0
	}
	n, err := io.ReadFull(c.src, p)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		c.srcEOF = true
	default:
		c.err = err
		c.srcEOF = true
	}
	return n
}

// run drives the window loop: fill, process, close a block per window, and
// emit each block once the following fill has revealed whether it is final.
func (c *compressor) run() error {
	c.openBlock()

	// Prime the first two bytes of the current window; the window fill
	// below reads behind them.
	c.loaded = c.fetch(c.cur()[:2])

	start := 0
	for {
		for c.loaded < c.w+2 && !c.srcEOF {
			c.loaded += c.fetch(c.cur()[c.loaded : c.w+2])
		}
		for _, p := range c.deferred {
			if p+2 < c.loaded {
				c.insertChain(p)
			}
		}
		c.deferred = c.deferred[:0]

		if c.loaded <= start {
			break
		}
		if c.pending != nil {
			c.emitBlock(c.pending, false)
			c.pending = nil
		}
		start = c.processWindow(start)
		c.closeBlock()
	}
	if c.err != nil {
		return c.err
	}

	if c.pending != nil {
		c.emitBlock(c.pending, true)
	} else {
		// Empty input: a single empty stored block carries BFINAL.
		c.emitStored(nil, true)
	}
	return nil
}

// processWindow scans current-window positions from start, emitting one
// token per iteration and maintaining the hash chain for every consumed
// position. It returns the start position for the next window: zero after a
// plain rotation, the carry-over count when a match ran past the window
// edge, or the end position when input ran out mid-window.
func (c *compressor) processWindow(start int) int {
	end := c.w
	if c.loaded < end {
		end = c.loaded
	}
	i := start
	for i < end {
		length, distance := c.bestMatch(i)
		var adv int
		if distance == 0 {
			b := c.buf[c.w+i]
			c.tokens = append(c.tokens, token{uint16(b), 0})
			c.llAHT.Insert(int(b))
			adv = 1
			c.report(adv, uint32(b), 0)
		} else {
			c.tokens = append(c.tokens, token{uint16(length), uint16(distance)})
			c.llAHT.Insert(lenCode(length))
			c.dAHT.Insert(distCode(distance))
			adv = length
			c.report(adv, uint32(length), uint32(distance))
		}

		j := i + adv
		carry := 0
		if j > c.w {
			carry = j - c.w
			j = c.w
		}
		c.consume(i, j)
		if carry > 0 {
			// The match spills into the next window: rotate now and consume
			// the carried positions there before the scan resumes.
			c.rotate()
			c.consumeCarry(carry)
			return carry
		}
		i = j
	}
	if end == c.w {
		c.rotate()
		return 0
	}
	return end
}

// rotate makes the current window the former one: the spill bytes (and any
// fetched-ahead bytes) move to the front of the region, and the next fill
// reads behind them.
func (c *compressor) rotate() {
	sp := c.loaded - c.w
	if sp > 0 {
		copy(c.buf[c.w:], c.buf[2*c.w:2*c.w+sp])
	} else {
		sp = 0
	}
	if c.aheadLen > 0 {
		copy(c.buf[c.w+sp:], c.ahead[:c.aheadLen])
		c.loaded = sp + c.aheadLen
		c.aheadLen = 0
	} else {
		c.loaded = sp
	}
	c.readAhead = false
	c.firstWindow = false
}

// consume processes current-window positions [i, j): the bytes join the
// block's raw run and the checksum, each position is prepended to its hash
// bucket, the same position of the former window is trimmed from its
// bucket, and the byte is copied into the former window.
func (c *compressor) consume(i, j int) {
	seg := c.buf[c.w+i : c.w+j]
	c.raw = append(c.raw, seg...)
	c.digest.Write(seg)
	for pos := i; pos < j; pos++ {
		if pos+2 < c.loaded {
			c.insertChain(pos)
		}
		if !c.firstWindow {
			c.trimChain(pos)
		}
		c.buf[pos] = c.buf[c.w+pos]
	}
}

// consumeCarry consumes positions [0, carry) of the freshly rotated window.
// These bytes belong to the match token already emitted. Positions whose
// hash look-ahead is not loaded yet are deferred to the next fill.
func (c *compressor) consumeCarry(carry int) {
	seg := c.buf[c.w : c.w+carry]
	c.raw = append(c.raw, seg...)
	c.digest.Write(seg)
	for pos := 0; pos < carry; pos++ {
		if pos+2 < c.loaded {
			c.insertChain(pos)
		} else {
			c.deferred = append(c.deferred, pos)
		}
		c.trimChain(pos)
		c.buf[pos] = c.buf[c.w+pos]
	}
}

// bestMatch walks position i's hash chain and returns the longest duplicate
// of at least MinMatch bytes, or (0, 0) for a literal. The chain is walked
// newest first, and only strictly longer candidates replace the best, so
// the nearest occurrence wins ties.
func (c *compressor) bestMatch(i int) (length, distance int) {
	if i+2 >= c.loaded {
		return 0, 0
	}
	hd := c.heads[c.hashAt(c.w+i)]
	p := hd.head
	best := MinMatch - 1
	bestOff := -1
	for j := int32(0); j < hd.n; j++ {
		var off int
		if int(p) < i {
			off = c.w + int(p) // within the current window
		} else {
			off = int(p) // within the former window
		}
		if l := c.matchLen(i, off); l > best {
			best = l
			bestOff = off
		}
		p = c.next[p]
	}
	if bestOff < 0 {
		return 0, 0
	}
	// Keep the carry-over within one window; only the smallest window can
	// hit this with a maximal match at its last position.
	if best > 2*c.w-i {
		best = 2*c.w - i
	}
	return best, c.w + i - bestOff
}

// matchLen measures the common prefix of the string at current-window
// position i and the candidate at buffer offset off, capped at MaxMatch.
// When the scan reaches the end of the current window and its spill, the
// next MaxMatch-2 source bytes are fetched ahead so the comparison can
// continue across the window edge.
func (c *compressor) matchLen(i, off int) int {
	si := c.w + i
	di := off
	n := 0
	for n < MaxMatch {
		if si >= c.w+c.loaded {
			if si < 2*c.w+2 {
				break // source exhausted inside the window
			}
			if si-(2*c.w+2) >= c.aheadLen {
				if c.readAhead || c.srcEOF {
					break
				}
				c.fetchAhead()
				if si-(2*c.w+2) >= c.aheadLen {
					break
				}
			}
		}
		if c.byteAt(si) != c.byteAt(di) {
			break
		}
		si++
		di++
		n++
	}
	return n
}

func (c *compressor) fetchAhead() {
	c.aheadLen = c.fetch(c.ahead[:MaxMatch-2])
	c.readAhead = true
}

// byteAt reads the unified byte space: the two-window buffer followed by
// the fetched-ahead bytes.
func (c *compressor) byteAt(u int) byte {
	if u < 2*c.w+2 {
		return c.buf[u]
	}
	return c.ahead[u-(2*c.w+2)]
}

func (c *compressor) hashAt(off int) uint32 {
	return dupHash(c.buf[off], c.buf[off+1], c.buf[off+2])
}

func (c *compressor) insertChain(pos int) {
	hd := &c.heads[c.hashAt(c.w+pos)]
	c.next[pos] = hd.head
	hd.head = uint16(pos)
	hd.n++
}

// trimChain drops the former window's occurrence at pos: that occurrence is
// the oldest in its bucket, so shortening the bucket retires it.
func (c *compressor) trimChain(pos int) {
	hd := &c.heads[c.hashAt(pos)]
	if hd.n > 0 {
		hd.n--
	}
}

// dupHash interleaves the low bits of three consecutive bytes and reduces
// the result modulo the table size.
func dupHash(a, b, d byte) uint32 {
	x := spread3(uint32(a))
	y := spread3(uint32(b))
	z := spread3(uint32(d))
	return (x | y<<1 | z<<2) % hashSize
}

// spread3 distributes the low 8 bits of x to every third bit position.
func spread3(x uint32) uint32 {
	x = (x | x<<8) & 0x0000f00f
	x = (x | x<<4) & 0x000c30c3
	x = (x | x<<2) & 0x00249249
	return x
}

// openBlock resets the adaptive trees and token buffers for a new block.
// The end-of-block symbol is inserted up front: it is emitted exactly once
// per block, so it always carries weight.
func (c *compressor) openBlock() {
	c.llAHT.Reset()
	c.dAHT.Reset()
	c.llAHT.Insert(EndOfBlock)
	c.tokens = c.tokens[:0]
	c.raw = c.raw[:0]
}

// closeBlock snapshots the finished block for deferred emission and opens
// the next one.
func (c *compressor) closeBlock() {
	snap := &blockSnap{
		tokens: append([]token(nil), c.tokens...),
		raw:    append([]byte(nil), c.raw...),
	}
	c.llAHT.Weights(snap.llW[:])
	c.dAHT.Weights(snap.dW[:])
	c.pending = snap
	c.openBlock()
}

func (c *compressor) report(adv int, litOrLen, dist uint32) {
	c.processed += uint32(adv)
	if c.stats == nil {
		return
	}
	c.stats(TokenStats{
		BytesProcessed: c.processed,
		LitOrLen:       litOrLen,
		Dist:           dist,
		TreeBits:       uint32(c.estimateTreeBits()),
		StreamBits:     uint32(c.llAHT.Score() + c.dAHT.Score()),
	})
}

// lenCode maps a match length (3..258) to its literal/length code
// (RFC 1951 §3.2.5 Table 1).
func lenCode(x int) int {
	if x < 11 {
		return x + 254
	}
	if x == MaxMatch {
		return 285
	}
	eb := bits.Len32(uint32(x-3)) - 3
	return 261 + 4*eb + ((x-3)>>uint(eb) - 4)
}

// distCode maps a distance (1..32768) to its distance code
// (RFC 1951 §3.2.5 Table 2).
func distCode(x int) int {
	if x < 5 {
		return x - 1
	}
	eb := bits.Len32(uint32(x-1)) - 2
	return 2*eb + int((uint32(x-1)>>uint(eb))&1) + 2
}

// Fixed-code encoding tables, derived from the fixed length vectors.
var (
	fixedCodesOnce sync.Once
	fixedLitCodes  []uint16
	fixedDistCodes []uint16
)

func fixedCodes() (lit, dist []uint16) {
	fixedCodesOnce.Do(func() {
		fixedLitCodes = CanonicalCodes(fixedLitLenLengths[:])
		fixedDistCodes = CanonicalCodes(fixedDistLengths[:])
	})
	return fixedLitCodes, fixedDistCodes
}

// emitBlock writes the cheapest encoding of the block: dynamic Huffman,
// fixed Huffman, or stored.
func (c *compressor) emitBlock(b *blockSnap, final bool) {
	litLens := BuildCodeLengths(b.llW[:], maxCodeLen)
	distLens := BuildCodeLengths(b.dW[:], maxCodeLen)
	plan := planHeader(litLens, distLens)

	// Extra bits cost the same under both Huffman encodings; stored blocks
	// carry none.
	extras := 0
	for i, w := range b.llW[257:] {
		extras += int(w) * int(lengthExtra[i])
	}
	for i, w := range b.dW {
		extras += int(w) * int(distExtra[i])
	}

	dynBits := 3 + plan.headerBits + costBits(b.llW[:], litLens) + costBits(b.dW[:], distLens) + extras
	fixBits := 3 + costBits(b.llW[:], fixedLitLenLengths[:NumLitLenCodes]) +
		costBits(b.dW[:], fixedDistLengths[:NumDistCodes]) + extras
	pad := (8 - (c.bw.BitsWritten()+3)&7) & 7
	storedBits := 3 + pad + 32 + 8*len(b.raw)

	bf := uint32(0)
	if final {
		bf = 1
	}
	switch {
	case storedBits <= dynBits && storedBits <= fixBits:
		c.emitStored(b.raw, final)
	case fixBits <= dynBits:
		c.bw.WriteBits(bf, 1)
		c.bw.WriteBits(1, 2)
		lit, dist := fixedCodes()
		c.writeTokens(b.tokens, lit, fixedLitLenLengths[:], dist, fixedDistLengths[:])
	default:
		c.bw.WriteBits(bf, 1)
		c.bw.WriteBits(2, 2)
		c.writeDynamicHeader(plan)
		c.writeTokens(b.tokens, CanonicalCodes(litLens), litLens, CanonicalCodes(distLens), distLens)
	}
}

func (c *compressor) emitStored(raw []byte, final bool) {
	bf := uint32(0)
	if final {
		bf = 1
	}
	c.bw.WriteBits(bf, 1)
	c.bw.WriteBits(0, 2)
	c.bw.AlignByte()
	n := uint32(len(raw))
	c.bw.WriteBits(n, 16)
	c.bw.WriteBits(^n&0xffff, 16)
	c.bw.WriteBytes(raw)
}

// writeDynamicHeader emits HLIT, HDIST, HCLEN, the code-length code's
// lengths in transmission order, and the RLE'd code-length sequence.
func (c *compressor) writeDynamicHeader(plan *dynPlan) {
	c.bw.WriteBits(uint32(plan.hlit-257), 5)
	c.bw.WriteBits(uint32(plan.hdist-1), 5)
	c.bw.WriteBits(uint32(plan.numCl-4), 4)
	for i := 0; i < plan.numCl; i++ {
		c.bw.WriteBits(uint32(plan.clLens[clOrder[i]]), 3)
	}
	for _, tok := range plan.tokens {
		c.bw.WriteBits(uint32(plan.clCodes[tok.code]), int(plan.clLens[tok.code]))
		if tok.code >= 16 {
			c.bw.WriteBits(uint32(tok.extra), int(clExtra[tok.code-16]))
		}
	}
}

// writeTokens emits the block's tokens followed by the end-of-block symbol.
func (c *compressor) writeTokens(tokens []token, litCodes []uint16, litLens []uint8, distCodes []uint16, distLens []uint8) {
	for _, t := range tokens {
		if t.dist == 0 {
			v := int(t.len)
			c.bw.WriteBits(uint32(litCodes[v]), int(litLens[v]))
			continue
		}
		lc := lenCode(int(t.len))
		c.bw.WriteBits(uint32(litCodes[lc]), int(litLens[lc]))
		li := lc - 257
		c.bw.WriteBits(uint32(int(t.len)-int(lengthBase[li])), int(lengthExtra[li]))
		dc := distCode(int(t.dist))
		c.bw.WriteBits(uint32(distCodes[dc]), int(distLens[dc]))
		c.bw.WriteBits(uint32(int(t.dist)-int(distBase[dc])), int(distExtra[dc]))
	}
	c.bw.WriteBits(uint32(litCodes[EndOfBlock]), int(litLens[EndOfBlock]))
}

func costBits(weights []uint32, lens []uint8) int {
	t := 0
	for i, w := range weights {
		t += int(w) * int(lens[i])
	}
	return t
}
