package zipinflate

import "fmt"

// huffTree is a canonical Huffman decode table (RFC 1951 §3.2.2): for
// each code length, the count of codes of that length and the symbols
// assigned to them in order. inflate.c builds a combined bit-at-a-time
// and fast-table tree (struct tree, TREE_FAST_BITS); this port always
// walks bit-by-bit, since the fast table is a performance optimization
// this package — used only for ZIP's rare Deflate64 entries — doesn't
// need.
type huffTree struct {
	counts  [16]int
	symbols []int
}

// buildTree constructs the canonical tree for the given per-symbol code
// lengths (0 meaning the symbol is unused), the same canonicalization
// inflate.c's tree_add_code / RFC 1951's deflate spec describe.
func buildTree(lengths []int) (*huffTree, error) {
	t := &huffTree{symbols: make([]int, len(lengths))}
	for _, l := range lengths {
		if l < 0 || l > 15 {
			return nil, fmt.Errorf("zipinflate: invalid code length %d", l)
		}
		t.counts[l]++
	}
	t.counts[0] = 0

	offsets := [16]int{}
	for i := 1; i < 16; i++ {
		offsets[i] = offsets[i-1] + t.counts[i-1]
	}
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		t.symbols[offsets[l]] = sym
		offsets[l]++
	}
	return t, nil
}

// decode walks r bit-by-bit against t, building up the code MSB-first
// (DEFLATE's Huffman codes are packed MSB-first despite the surrounding
// stream being LSB-first, RFC 1951 §3.1.1) until it matches a valid
// code of some length.
func (t *huffTree) decode(r *bitReader) (int, bool) {
	code := 0
	first := 0
	index := 0
	for length := 1; length <= 15; length++ {
		bit, ok := r.readBits(1)
		if !ok {
			return 0, false
		}
		code |= int(bit)
		count := t.counts[length]
		if code-first < count {
			return t.symbols[index+(code-first)], true
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, false
}
