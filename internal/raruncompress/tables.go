package raruncompress

// Back-reference tables shared by the v2 and v3 LZSS expanders
// (uncompress-rar.c's static lengthbases/lengthbits/offsetbases/
// offsetbits/shortbases/shortbits arrays, §4.6). v2 only ever indexes
// the first 48 offset entries (OFFSETCODE_SIZE_20); v3 uses the full 60,
// the last 12 of which need 18 extra bits instead of 16.

var lengthBases = [28]int{
	0, 1, 2, 3, 4, 5, 6,
	7, 8, 10, 12, 14, 16, 20,
	24, 28, 32, 40, 48, 56, 64,
	80, 96, 112, 128, 160, 192, 224,
}

var lengthBits = [28]uint{
	0, 0, 0, 0, 0, 0, 0,
	0, 1, 1, 1, 1, 2, 2,
	2, 2, 3, 3, 3, 3, 4,
	4, 4, 4, 5, 5, 5, 5,
}

var offsetBases = [60]int{
	0, 1, 2, 3, 4, 6,
	8, 12, 16, 24, 32, 48,
	64, 96, 128, 192, 256, 384,
	512, 768, 1024, 1536, 2048, 3072,
	4096, 6144, 8192, 12288, 16384, 24576,
	32768, 49152, 65536, 98304, 131072, 196608,
	262144, 327680, 393216, 458752, 524288, 589824,
	655360, 720896, 786432, 851968, 917504, 983040,
	1048576, 1310720, 1572864, 1835008, 2097152, 2359296,
	2621440, 2883584, 3145728, 3407872, 3670016, 3932160,
}

var offsetBits = [60]uint{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4,
	5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10,
	11, 11, 12, 12, 13, 13, 14, 14, 15, 15, 16, 16,
	16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16,
	18, 18, 18, 18, 18, 18, 18, 18, 18, 18, 18, 18,
}

var shortBases = [8]int{0, 4, 8, 16, 32, 64, 128, 192}
var shortBits = [8]uint{2, 2, 3, 4, 5, 6, 6, 6}

// Huffman table-segment sizes (§4.6). The v3 low-offset code is the
// feature v2 lacks entirely.
const (
	lzssWindowSize   = 0x400000
	lzssOverflowSize = 288

	mainCodeSize      = 299
	offsetCodeSize    = 60
	lowOffsetCodeSize = 17
	lengthCodeSize    = 28
	huffmanTableSize  = mainCodeSize + offsetCodeSize + lowOffsetCodeSize + lengthCodeSize

	mainCodeSize20     = 298
	offsetCodeSize20   = 48
	lengthCodeSize20   = 28
	huffmanTableSize20 = 4 * 257
)
