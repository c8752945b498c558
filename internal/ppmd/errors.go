package ppmd

import "errors"

// ErrUnsupported is returned by Decode7: the RAR-specific range-decoder
// glue (RangeDecoder, below) is a real, portable port of
// uncompress-rar.c's CPpmdRAR_RangeDec, but no Ppmd7 context-tree/model
// implementation exists anywhere in the retrieval pack this module was
// grounded on. Building the model from the RFC-level PPMd description
// alone, rather than from a concrete reference implementation, would be
// guessing rather than porting, so PPMd-compressed RAR blocks are
// rejected instead.
var ErrUnsupported = errors.New("ppmd: PPMd7 model decoding is not supported")
