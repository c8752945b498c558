package raruncompress

import (
	"fmt"

	"github.com/javi11/unarr/internal/huffman"
)

// v2State holds the RAR v2 (UnpVer 20/26) engine's tables and predictor
// state (ar_archive_rar_uncomp_v2, §4.6).
type v2State struct {
	mainCode   *huffman.Code
	offsetCode *huffman.Code
	lengthCode *huffman.Code
	audioCode  [4]*huffman.Code

	lengthTable [huffmanTableSize20]byte

	lastOffset    int
	lastLength    int
	oldOffset     [4]int
	oldOffsetIdx  uint

	audioBlock    bool
	channel       uint8
	numChannels   uint8
	audioState    [4]audioState
	channelDelta  int8
}

// audioState is the v2 inline LZSS-replacement audio predictor
// (rar_decode_audio's AudioState, §4.6): a distinct, older 5-weight/
// 11-error-slot linear predictor from the newer 3-weight/7-slot filter
// rarfilter.AudioChannel implements for the v3 filter queue — the two
// are unrelated algorithms despite the shared "audio" name.
type audioState struct {
	weight     [5]int8
	delta      [4]int16
	lastDelta  int8
	errs       [11]int
	count      int
	lastByte   uint8
}

// parseCodesV2 re-reads the v2 Huffman tables (rar_parse_codes_v2,
// §4.6): a 19-symbol pre-code (4-bit RLE escape scheme identical in
// shape to v3's, just a shorter alphabet and without the 0x0F zero-run
// special case) builds either one 257-symbol audio code per channel (up
// to four) or the
// combined main/offset/length table, depending on the audio-block flag
// read from the same leading two bits.
func (d *Decoder) parseCodesV2() error {
	v2 := &d.v2
	br := d.br

	if !br.Ensure(2) {
		return errBadBitstream
	}
	v2.audioBlock = br.Bits(1) != 0
	if br.Bits(1) == 0 {
		v2.lengthTable = [huffmanTableSize20]byte{}
	}

	var count int
	if v2.audioBlock {
		if !br.Ensure(2) {
			return errBadBitstream
		}
		v2.numChannels = uint8(br.Bits(2)) + 1
		count = int(v2.numChannels) * 257
		if v2.channel > v2.numChannels {
			v2.channel = 0
		}
	} else {
		count = mainCodeSize20 + offsetCodeSize20 + lengthCodeSize20
	}

	var prelengths [19]byte
	for i := range prelengths {
		if !br.Ensure(4) {
			return errBadBitstream
		}
		prelengths[i] = byte(br.Bits(4))
	}
	precode, err := buildCode(prelengths[:])
	if err != nil {
		return err
	}

	for i := 0; i < count; {
		val, err := readSymbol(br, precode)
		if err != nil {
			return err
		}
		switch {
		case val < 16:
			v2.lengthTable[i] = (v2.lengthTable[i] + byte(val)) & 0x0F
			i++
		case val == 16:
			if i == 0 {
				return errBadBitstream
			}
			if !br.Ensure(2) {
				return errBadBitstream
			}
			n := int(br.Bits(2)) + 3
			for j := 0; j < n && i < count; i, j = i+1, j+1 {
				v2.lengthTable[i] = v2.lengthTable[i-1]
			}
		default:
			var n int
			if val == 17 {
				if !br.Ensure(3) {
					return errBadBitstream
				}
				n = int(br.Bits(3)) + 3
			} else {
				if !br.Ensure(7) {
					return errBadBitstream
				}
				n = int(br.Bits(7)) + 11
			}
			for j := 0; j < n && i < count; i, j = i+1, j+1 {
				v2.lengthTable[i] = 0
			}
		}
	}

	if v2.audioBlock {
		for i := 0; i < int(v2.numChannels); i++ {
			c, err := buildCode(v2.lengthTable[i*257 : i*257+257])
			if err != nil {
				return err
			}
			v2.audioCode[i] = c
		}
	} else {
		mc, err := buildCode(v2.lengthTable[:mainCodeSize20])
		if err != nil {
			return err
		}
		oc, err := buildCode(v2.lengthTable[mainCodeSize20 : mainCodeSize20+offsetCodeSize20])
		if err != nil {
			return err
		}
		lc, err := buildCode(v2.lengthTable[mainCodeSize20+offsetCodeSize20 : mainCodeSize20+offsetCodeSize20+lengthCodeSize20])
		if err != nil {
			return err
		}
		v2.mainCode, v2.offsetCode, v2.lengthCode = mc, oc, lc
	}

	d.startNewTable = false
	return nil
}

// decodeAudio runs the v2 linear predictor for one channel's next
// sample, a direct port of rar_decode_audio (§4.6): it keeps a 4-entry
// delta history and an 11-slot prediction-error accumulator that every
// 32 samples picks the best-performing nudge and adjusts one of five
// weights by +-1.
func decodeAudio(state *audioState, channelDelta *int8, delta int8) byte {
	state.delta[3] = state.delta[2]
	state.delta[2] = state.delta[1]
	state.delta[1] = int16(state.lastDelta) - state.delta[0]
	state.delta[0] = int16(state.lastDelta)

	pred := (8*int32(state.lastByte) +
		int32(state.weight[0])*int32(state.delta[0]) +
		int32(state.weight[1])*int32(state.delta[1]) +
		int32(state.weight[2])*int32(state.delta[2]) +
		int32(state.weight[3])*int32(state.delta[3]) +
		int32(state.weight[4])*int32(*channelDelta)) >> 3
	predByte := byte(pred & 0xFF)
	b := byte((int32(predByte) - int32(delta)) & 0xFF)

	predErr := int32(delta) << 3
	state.errs[0] += absInt(predErr)
	state.errs[1] += absInt(predErr - int32(state.delta[0]))
	state.errs[2] += absInt(predErr + int32(state.delta[0]))
	state.errs[3] += absInt(predErr - int32(state.delta[1]))
	state.errs[4] += absInt(predErr + int32(state.delta[1]))
	state.errs[5] += absInt(predErr - int32(state.delta[2]))
	state.errs[6] += absInt(predErr + int32(state.delta[2]))
	state.errs[7] += absInt(predErr - int32(state.delta[3]))
	state.errs[8] += absInt(predErr + int32(state.delta[3]))
	state.errs[9] += absInt(predErr - int32(*channelDelta))
	state.errs[10] += absInt(predErr + int32(*channelDelta))

	newDelta := int8(b - state.lastByte)
	*channelDelta = newDelta
	state.lastDelta = newDelta
	state.lastByte = b

	state.count++
	if state.count&0x1F == 0 {
		idx := 0
		for i := 1; i < 11; i++ {
			if state.errs[i] < state.errs[idx] {
				idx = i
			}
		}
		state.errs = [11]int{}
		switch idx {
		case 1:
			if state.weight[0] >= -16 {
				state.weight[0]--
			}
		case 2:
			if state.weight[0] < 16 {
				state.weight[0]++
			}
		case 3:
			if state.weight[1] >= -16 {
				state.weight[1]--
			}
		case 4:
			if state.weight[1] < 16 {
				state.weight[1]++
			}
		case 5:
			if state.weight[2] >= -16 {
				state.weight[2]--
			}
		case 6:
			if state.weight[2] < 16 {
				state.weight[2]++
			}
		case 7:
			if state.weight[3] >= -16 {
				state.weight[3]--
			}
		case 8:
			if state.weight[3] < 16 {
				state.weight[3]++
			}
		case 9:
			if state.weight[4] >= -16 {
				state.weight[4]--
			}
		case 10:
			if state.weight[4] < 16 {
				state.weight[4]++
			}
		}
	}

	return b
}

func absInt(v int32) int {
	if v < 0 {
		return int(-v)
	}
	return int(v)
}

// expandV2 is rar_expand_v2 (§4.6): decode main-code symbols into
// literals, 256-269 match/repeat opcodes, or (in audio-block mode) a
// per-channel predictor sample, emitting into the shared LZSS window
// until end is reached or a new table is signalled.
func (d *Decoder) expandV2(end int64) (int64, error) {
	v2 := &d.v2
	win := d.win
	br := d.br

	maxEnd := d.entryTarget + d.solidTotal
	if end > maxEnd {
		end = maxEnd
	}

	for {
		if win.Position() >= end {
			return end, nil
		}

		if v2.audioBlock {
			symbol, err := readSymbol(br, v2.audioCode[v2.channel])
			if err != nil {
				return 0, err
			}
			if symbol == 256 {
				d.startNewTable = true
				return win.Position(), nil
			}
			b := decodeAudio(&v2.audioState[v2.channel], &v2.channelDelta, int8(byte(symbol)))
			v2.channel++
			if v2.channel == v2.numChannels {
				v2.channel = 0
			}
			win.EmitLiteral(b)
			continue
		}

		symbol, err := readSymbol(br, v2.mainCode)
		if err != nil {
			return 0, err
		}
		var offs, length int
		switch {
		case symbol < 256:
			win.EmitLiteral(byte(symbol))
			continue
		case symbol == 256:
			offs, length = v2.lastOffset, v2.lastLength
		case symbol <= 260:
			idx := symbol - 256
			lenSymbol, err := readSymbol(br, v2.lengthCode)
			if err != nil {
				return 0, err
			}
			offs = v2.oldOffset[(v2.oldOffsetIdx-uint(idx))&0x03]
			if int(lenSymbol) >= len(lengthBases) {
				return 0, errBadBitstream
			}
			length = lengthBases[lenSymbol] + 2
			if lengthBits[lenSymbol] > 0 {
				if !br.Ensure(lengthBits[lenSymbol]) {
					return 0, errBadBitstream
				}
				length += int(br.Bits(lengthBits[lenSymbol]))
			}
			if offs >= 0x40000 {
				length++
			}
			if offs >= 0x2000 {
				length++
			}
			if offs >= 0x101 {
				length++
			}
		case symbol <= 268:
			idx := symbol - 261
			offs = shortBases[idx] + 1
			if shortBits[idx] > 0 {
				if !br.Ensure(shortBits[idx]) {
					return 0, errBadBitstream
				}
				offs += int(br.Bits(shortBits[idx]))
			}
			length = 2
		case symbol == 269:
			d.startNewTable = true
			return win.Position(), nil
		default:
			idx := symbol - 270
			if int(idx) >= len(lengthBases) {
				return 0, errBadBitstream
			}
			length = lengthBases[idx] + 3
			if lengthBits[idx] > 0 {
				if !br.Ensure(lengthBits[idx]) {
					return 0, errBadBitstream
				}
				length += int(br.Bits(lengthBits[idx]))
			}
			offsSymbol, err := readSymbol(br, v2.offsetCode)
			if err != nil {
				return 0, err
			}
			if int(offsSymbol) >= len(offsetBases[:offsetCodeSize20]) {
				return 0, errBadBitstream
			}
			offs = offsetBases[offsSymbol] + 1
			if offsetBits[offsSymbol] > 0 {
				if !br.Ensure(offsetBits[offsSymbol]) {
					return 0, errBadBitstream
				}
				offs += int(br.Bits(offsetBits[offsSymbol]))
			}
			if offs >= 0x40000 {
				length++
			}
			if offs >= 0x2000 {
				length++
			}
		}

		v2.oldOffset[v2.oldOffsetIdx&0x03] = offs
		v2.oldOffsetIdx++
		v2.lastOffset = offs
		v2.lastLength = length

		if err := win.EmitMatch(int64(offs), int64(length)); err != nil {
			return 0, fmt.Errorf("%w: %v", errBadBitstream, err)
		}
	}
}
