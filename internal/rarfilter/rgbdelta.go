package rarfilter

// runRGBDelta implements the RGB de-interlacing fast path (§4.5,
// fingerprint rarvm.FingerprintRGBDelta). block holds three channels
// interleaved at a fixed stride (the filter's first initial register);
// each channel is decoded by walking its samples in storage order and,
// for every sample beyond the first row, choosing a predictor among the
// unchanged running byte, the same-row-above sample, and the
// diagonally-above sample — whichever of the latter two is closer to
// `above + aboveLeft - current` — before subtracting the stored
// difference. A final pass folds the "green" channel (selected by the
// filter's second initial register, PosG) back into the other two, the
// inverse of the encoder's RGB decorrelation step.
func runRGBDelta(f *Filter, block []byte) []byte {
	stride := int(f.InitialRegs[0])
	byteOffset := int(f.InitialRegs[1])
	blockLength := int(f.InitialRegs[4])
	if blockLength <= 0 || blockLength > len(block) {
		blockLength = len(block)
	}

	dst := make([]byte, blockLength)
	srcPos := 0

	for ch := 0; ch < 3; ch++ {
		var cur byte
		for j := ch; j < blockLength; j += 3 {
			prevIdx := j - stride
			if prevIdx >= 0 {
				p0 := int(dst[prevIdx])
				p3 := p0
				if prevIdx+3 < blockLength {
					p3 = int(dst[prevIdx+3])
				}
				delta1 := rgbAbs(p3 - p0)
				delta2 := rgbAbs(int(cur) - p0)
				delta3 := rgbAbs(p3 - p0 + int(cur) - p0)
				if delta1 > delta2 || delta1 > delta3 {
					if delta2 <= delta3 {
						cur = byte(p3)
					} else {
						cur = byte(p0)
					}
				}
			}
			if srcPos < len(block) {
				cur -= block[srcPos]
				srcPos++
			}
			dst[j] = cur
		}
	}

	for i := byteOffset; i+2 < blockLength; i += 3 {
		dst[i] += dst[i+1]
		dst[i+2] += dst[i+1]
	}
	return dst
}

func rgbAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
