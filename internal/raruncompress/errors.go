package raruncompress

import "errors"

var (
	// ErrUnsupported is returned for a PPMd-compressed v3 block: the
	// range-decoder glue (see internal/ppmd) is real, but no PPMd7
	// context-tree/model source exists anywhere in the retrieval pack
	// this port was built against, so the model itself cannot be
	// grounded rather than guessed at.
	ErrUnsupported = errors.New("raruncompress: PPMd-compressed RAR blocks are not supported")

	errBadBitstream = errors.New("raruncompress: malformed compressed bitstream")
	errEngine       = errors.New("raruncompress: unsupported compression engine version")
)
