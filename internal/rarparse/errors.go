package rarparse

import "errors"

var (
	errHeaderShort = errors.New("rarparse: truncated block header")
	errHeaderBad   = errors.New("rarparse: block header size inconsistent")
)
