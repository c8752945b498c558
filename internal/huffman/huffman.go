// Package huffman builds canonical prefix-code tables from RAR length
// vectors and decodes symbols from a bitreader.Reader (§4.3): a fast
// lookup table for short codes, falling back to a tree walk for anything
// wider than the table.
package huffman

import (
	"errors"

	"github.com/javi11/unarr/internal/bitreader"
)

// ErrConflict is returned by New when two symbols would share a prefix, or
// a length vector tries to register the same code twice.
var ErrConflict = errors.New("huffman: duplicate or prefix-conflicting code")

// ErrInvalidSymbol is returned by ReadNext when a decoded tree index falls
// outside the registered symbol set.
var ErrInvalidSymbol = errors.New("huffman: decoded value outside symbol set")

const maxTableBits = 10

// node is one binary-tree branch point. Branches hold a child node index,
// or -1 for "no child yet". leaf[i] disambiguates a node that has become a
// pure leaf (both branches conceptually collapse to the stored symbol) from
// an internal node under construction — the spec's "-1/-2 unset" sentinel
// distinction collapses to this explicit flag in the Go port without any
// change in decode behavior.
type node struct {
	branch [2]int32
}

// Code is a canonical Huffman decoder: the tree used for codes longer than
// the fast-table width, plus the fast table itself.
type Code struct {
	nodes    []node
	leaf     []bool
	symbol   []int32 // valid only where leaf[i] is true
	numSyms  int
	minLen   int
	maxLen   int
	tableBits uint
	table    []tableEntry
}

type tableEntry struct {
	length uint8 // <= tableBits for a direct leaf; tableBits+1 means "follow tree from node treeIdx"
	value  int32 // leaf symbol, or (when length == tableBits+1) a tree node index
}

// New builds a canonical Huffman code from a per-symbol length vector
// (0 meaning "symbol absent"). Lengths must be in [0,15].
func New(lengths []int) (*Code, error) {
	c := &Code{nodes: []node{{branch: [2]int32{-1, -1}}}, leaf: []bool{false}, symbol: []int32{0}}
	var blCount [16]int
	for _, l := range lengths {
		if l < 0 || l > 15 {
			return nil, errors.New("huffman: length out of range")
		}
		if l > 0 {
			blCount[l]++
			c.numSyms++
		}
		if l > c.maxLen {
			c.maxLen = l
		}
	}
	if c.numSyms == 0 {
		c.tableBits = 0
		return c, nil
	}
	c.minLen = 16
	var code int
	var nextCode [16]int
	for bits := 1; bits <= 15; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		if l < c.minLen {
			c.minLen = l
		}
		cd := nextCode[l]
		nextCode[l]++
		if err := c.insert(cd, l, int32(sym)); err != nil {
			return nil, err
		}
	}
	c.tableBits = uint(c.maxLen)
	if c.tableBits > maxTableBits {
		c.tableBits = maxTableBits
	}
	c.buildTable()
	return c, nil
}

func (c *Code) insert(code, length int, symbol int32) error {
	cur := int32(0)
	for i := length - 1; i >= 0; i-- {
		bit := (code >> uint(i)) & 1
		if c.leaf[cur] {
			return ErrConflict
		}
		if i == 0 {
			if c.nodes[cur].branch[bit] != -1 {
				return ErrConflict
			}
			child := c.newNode()
			c.nodes[cur].branch[bit] = child
			c.leaf[child] = true
			c.symbol[child] = symbol
			continue
		}
		if c.nodes[cur].branch[bit] == -1 {
			child := c.newNode()
			c.nodes[cur].branch[bit] = child
			cur = child
			continue
		}
		next := c.nodes[cur].branch[bit]
		if c.leaf[next] {
			return ErrConflict
		}
		cur = next
	}
	return nil
}

func (c *Code) newNode() int32 {
	c.nodes = append(c.nodes, node{branch: [2]int32{-1, -1}})
	c.leaf = append(c.leaf, false)
	c.symbol = append(c.symbol, 0)
	return int32(len(c.nodes) - 1)
}

// buildTable fills the 2^tableBits fast-lookup table: every combination of
// trailing bits beyond a short code's length maps to that code's (length,
// value); codes longer than tableBits store (tableBits+1, tree-node-index)
// so ReadNext knows to fall through to a tree walk.
func (c *Code) buildTable() {
	size := 1 << c.tableBits
	c.table = make([]tableEntry, size)
	c.fillTable(0, 0, 0)
}

func (c *Code) fillTable(nodeIdx int32, prefix uint32, depth uint) {
	// A leaf reached exactly at the table boundary still fills with its
	// own (shorter) length, not a "continue walking the tree" marker;
	// the depth==tableBits fallback only applies to nodes that are
	// still internal at that depth.
	if c.leaf[nodeIdx] {
		count := uint32(1) << (c.tableBits - depth)
		base := prefix << (c.tableBits - depth)
		for i := uint32(0); i < count; i++ {
			c.table[base+i] = tableEntry{length: uint8(depth), value: c.symbol[nodeIdx]}
		}
		return
	}
	if depth == c.tableBits {
		c.table[prefix] = tableEntry{length: uint8(c.tableBits) + 1, value: nodeIdx}
		return
	}
	for bit := int32(0); bit < 2; bit++ {
		child := c.nodes[nodeIdx].branch[bit]
		if child == -1 {
			continue
		}
		c.fillTable(child, (prefix<<1)|uint32(bit), depth+1)
	}
}

// ReadNext decodes the next symbol from br. It consumes exactly as many
// bits as the matched code's length.
func (c *Code) ReadNext(br *bitreader.Reader) (int32, error) {
	if c.numSyms == 0 {
		return 0, ErrInvalidSymbol
	}
	if c.tableBits == 0 {
		return 0, ErrInvalidSymbol
	}
	if !br.Ensure(c.tableBits) {
		// Might still resolve with fewer bits at end-of-stream; try best
		// effort with whatever is buffered.
		if br.Available() == 0 {
			return 0, ErrInvalidSymbol
		}
	}
	top := br.PeekBits(c.tableBits)
	ent := c.table[top]
	if ent.length <= uint8(c.tableBits) {
		br.Bits(uint(ent.length))
		return ent.value, nil
	}
	// Fall through to tree walk starting at the recorded node, having
	// already consumed tableBits worth of prefix.
	br.Bits(c.tableBits)
	cur := ent.value
	for {
		if !br.Ensure(1) {
			return 0, ErrInvalidSymbol
		}
		bit := br.Bits(1)
		child := c.nodes[cur].branch[bit]
		if child == -1 {
			return 0, ErrInvalidSymbol
		}
		if c.leaf[child] {
			return c.symbol[child], nil
		}
		cur = child
	}
}

// MinLen and MaxLen expose the shortest/longest registered code lengths,
// useful for callers validating a length vector against format limits.
func (c *Code) MinLen() int { return c.minLen }
func (c *Code) MaxLen() int { return c.maxLen }
