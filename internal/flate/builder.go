package flate

import "sort"

// Static Huffman code construction for block emission.
//
// Code lengths come from the two-queue method: a sorted queue of leaves and
// a FIFO queue of merged internal nodes. Because merges happen in
// non-decreasing weight order, the internal queue is naturally sorted and
// each step only compares the two queue heads. Ties prefer the leaf, which
// keeps the maximum code length down.

// builderLeaf is a (symbol, frequency) pair in the leaf queue.
type builderLeaf struct {
	val    int
	weight uint32
}

// builderNode is a merged internal node; negative child values reference
// leaves as -index-1 into the leaf queue, non-negative values reference
// earlier internal nodes.
type builderNode struct {
	left  int32
	right int32
}

// BuildCodeLengths turns a weight vector into optimal prefix-code lengths
// with no code longer than limit. Symbols with zero weight get length zero.
// When the unconstrained tree is too deep, the leaf weights are clamped to
// an increasing minimum and the tree rebuilt until it fits, trading a
// little optimality for the depth bound.
func BuildCodeLengths(weights []uint32, limit int) []uint8 {
	lengths := make([]uint8, len(weights))

	var nonZero []builderLeaf
	for i, w := range weights {
		if w > 0 {
			nonZero = append(nonZero, builderLeaf{i, w})
		}
	}

	switch len(nonZero) {
	case 0:
		return lengths
	case 1:
		lengths[nonZero[0].val] = 1
		return lengths
	case 2:
		lengths[nonZero[0].val] = 1
		lengths[nonZero[1].val] = 1
		return lengths
	}

	leaves := make([]builderLeaf, len(nonZero))
	for countMin := uint32(1); ; countMin *= 2 {
		copy(leaves, nonZero)
		for i := range leaves {
			if leaves[i].weight < countMin {
				leaves[i].weight = countMin
			}
		}
		sort.Slice(leaves, func(i, j int) bool {
			if leaves[i].weight != leaves[j].weight {
				return leaves[i].weight < leaves[j].weight
			}
			return leaves[i].val < leaves[j].val
		})

		for i := range lengths {
			lengths[i] = 0
		}
		if twoQueueLengths(leaves, lengths) <= limit {
			return lengths
		}
	}
}

// twoQueueLengths merges the sorted leaves into a Huffman tree and writes
// each symbol's depth into lengths. It returns the maximum depth produced.
func twoQueueLengths(leaves []builderLeaf, lengths []uint8) int {
	n := len(leaves)
	nodes := make([]builderNode, 0, n-1)
	sums := make([]uint64, 0, n-1)
	h0, h1 := 0, 0

	peek0 := func() uint64 {
		if h0 < n {
			return uint64(leaves[h0].weight)
		}
		return ^uint64(0)
	}
	peek1 := func() uint64 {
		if h1 < len(sums) {
			return sums[h1]
		}
		return ^uint64(0)
	}
	// pop returns a child reference to the smallest remaining item,
	// preferring the leaf queue on ties.
	pop := func() (int32, uint64) {
		if p0 := peek0(); p0 <= peek1() {
			h0++
			return int32(-h0), p0 // -(h0-1)-1
		}
		w := sums[h1]
		h1++
		return int32(h1 - 1), w
	}

	for (n-h0)+(len(sums)-h1) > 1 {
		l, lw := pop()
		r, rw := pop()
		nodes = append(nodes, builderNode{l, r})
		sums = append(sums, lw+rw)
	}

	// The last merged node is the root; walk it to assign depths.
	maxDepth := 0
	type frame struct {
		ref   int32
		depth int
	}
	stack := []frame{{int32(len(nodes) - 1), 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.ref < 0 {
			leaf := leaves[-f.ref-1]
			lengths[leaf.val] = uint8(f.depth)
			if f.depth > maxDepth {
				maxDepth = f.depth
			}
			continue
		}
		nd := nodes[f.ref]
		stack = append(stack, frame{nd.left, f.depth + 1}, frame{nd.right, f.depth + 1})
	}
	return maxDepth
}

// CanonicalCodes assigns canonical codes to the given code lengths and
// returns them bit-reversed, ready for LSB-first emission. Symbols are
// ordered by (length, value); the code for each symbol occupies the low
// lengths[i] bits of the result.
func CanonicalCodes(lengths []uint8) []uint16 {
	codes := make([]uint16, len(lengths))

	var count [maxCodeLen + 1]int
	for _, l := range lengths {
		count[l]++
	}
	var next [maxCodeLen + 1]uint32
	code := uint32(0)
	count[0] = 0
	for b := 1; b <= maxCodeLen; b++ {
		code = (code + uint32(count[b-1])) << 1
		next[b] = code
	}
	for i, l := range lengths {
		if l > 0 {
			codes[i] = uint16(reverseBits(next[l], int(l)))
			next[l]++
		}
	}
	return codes
}

// reverseBits reverses the lower nBits of v.
func reverseBits(v uint32, nBits int) uint32 {
	var result uint32
	for i := 0; i < nBits; i++ {
		result = result<<1 | v&1
		v >>= 1
	}
	return result
}

// clToken is one element of the run-length-encoded code-length sequence:
// code 0..15 emits that length literally, 16 repeats the previous length
// 3-6 times, 17 repeats zero 3-10 times, 18 repeats zero 11-138 times.
type clToken struct {
	code  uint8
	extra uint8
}

// clTokenize run-length encodes a code-length sequence into clTokens.
func clTokenize(seq []uint8) []clToken {
	var tokens []clToken
	i := 0
	for i < len(seq) {
		v := seq[i]
		j := i + 1
		for j < len(seq) && seq[j] == v {
			j++
		}
		run := j - i
		i = j

		if v == 0 {
			for run >= 11 {
				chunk := run
				if chunk > 138 {
					chunk = 138
				}
				tokens = append(tokens, clToken{18, uint8(chunk - 11)})
				run -= chunk
			}
			if run >= 3 {
				tokens = append(tokens, clToken{17, uint8(run - 3)})
				run = 0
			}
			for ; run > 0; run-- {
				tokens = append(tokens, clToken{0, 0})
			}
			continue
		}

		tokens = append(tokens, clToken{v, 0})
		run--
		for run >= 3 {
			chunk := run
			if chunk > 6 {
				chunk = 6
			}
			tokens = append(tokens, clToken{16, uint8(chunk - 3)})
			run -= chunk
		}
		for ; run > 0; run-- {
			tokens = append(tokens, clToken{v, 0})
		}
	}
	return tokens
}

// dynPlan is everything needed to emit (or cost) a dynamic block header.
type dynPlan struct {
	hlit    int // number of literal/length code lengths transmitted
	hdist   int // number of distance code lengths transmitted
	numCl   int // number of code-length-alphabet lengths transmitted (hclen+4)
	tokens  []clToken
	clLens  []uint8
	clCodes []uint16
	// headerBits counts everything after the 3-bit block header: the
	// HLIT/HDIST/HCLEN fields, the 3-bit code-length-code lengths, and the
	// encoded code-length tokens with their extra bits.
	headerBits int
}

// planHeader computes the dynamic-block header for the given literal/length
// and distance code lengths (litLens has NumLitLenCodes entries, distLens
// NumDistCodes).
func planHeader(litLens, distLens []uint8) *dynPlan {
	hlit := NumLitLenCodes
	for hlit > 257 && litLens[hlit-1] == 0 {
		hlit--
	}
	hdist := NumDistCodes
	for hdist > 1 && distLens[hdist-1] == 0 {
		hdist--
	}

	// One RLE pass over the concatenated sequence; runs may cross the
	// literal/distance boundary.
	seq := make([]uint8, 0, hlit+hdist)
	seq = append(seq, litLens[:hlit]...)
	seq = append(seq, distLens[:hdist]...)
	tokens := clTokenize(seq)

	var clWeights [NumClCodes]uint32
	for _, tok := range tokens {
		clWeights[tok.code]++
	}
	clLens := BuildCodeLengths(clWeights[:], maxClCodeLen)
	clCodes := CanonicalCodes(clLens)

	numCl := NumClCodes
	for numCl > 4 && clLens[clOrder[numCl-1]] == 0 {
		numCl--
	}

	bits := 5 + 5 + 4 + 3*numCl
	for _, tok := range tokens {
		bits += int(clLens[tok.code])
		if tok.code >= 16 {
			bits += int(clExtra[tok.code-16])
		}
	}

	return &dynPlan{
		hlit:       hlit,
		hdist:      hdist,
		numCl:      numCl,
		tokens:     tokens,
		clLens:     clLens,
		clCodes:    clCodes,
		headerBits: bits,
	}
}
