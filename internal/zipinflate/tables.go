package zipinflate

// lengthTable and distTable are table_lengths/table_dists from
// inflate.c: for length code 257+i and distance code i respectively,
// the extra-bit count and base value to add the extra bits to. Index 29
// (Deflate64's replacement for length code 285) and indices 30/31
// (distance codes 30/31) are the Deflate64 extension entries; plain
// Deflate never selects them.
var lengthTable = [30]struct {
	bits, base int
}{
	{0, 3}, {0, 4}, {0, 5}, {0, 6}, {0, 7}, {0, 8}, {0, 9}, {0, 10},
	{1, 11}, {1, 13}, {1, 15}, {1, 17}, {2, 19}, {2, 23}, {2, 27}, {2, 31},
	{3, 35}, {3, 43}, {3, 51}, {3, 59}, {4, 67}, {4, 83}, {4, 99}, {4, 115},
	{5, 131}, {5, 163}, {5, 195}, {5, 227},
	{0, 258}, // plain Deflate code 285
	{16, 3},  // Deflate64 code 285 (replaces the entry above)
}

var distTable = [32]struct {
	bits, base int
}{
	{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 5}, {1, 7},
	{2, 9}, {2, 13}, {3, 17}, {3, 25}, {4, 33}, {4, 49},
	{5, 65}, {5, 97}, {6, 129}, {6, 193}, {7, 257}, {7, 385},
	{8, 513}, {8, 769}, {9, 1025}, {9, 1537}, {10, 2049}, {10, 3073},
	{11, 4097}, {11, 6145}, {12, 8193}, {12, 12289}, {13, 16385}, {13, 24577},
	{14, 32769}, {14, 49153}, // Deflate64 only
}

// codeLengthOrder is the order code-length codes themselves are stored
// in for a dynamic block's pretree (table_code_length_idxs).
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

const windowSize = 1 << 16 // big enough for both Deflate (32K) and Deflate64 (64K) distances
