package rarfilter

import "testing"

func TestDeltaDeinterleavesChannels(t *testing.T) {
	// Two channels, 3 bytes each, all-zero deltas reconstruct to all-zero
	// output regardless of channel count.
	f := &Filter{InitialRegs: [8]uint32{2}}
	block := []byte{0, 0, 0, 0, 0, 0}
	out := runDelta(f, block)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("out[%d] = %d, want 0", i, b)
		}
	}
}

func TestE8KeepsLengthAndLeadingBytes(t *testing.T) {
	// One E8 pass over a block holding a single tagged call target must
	// keep the block length and leave the bytes before the tag byte
	// unchanged; the rewritten target itself is not checked here.
	block := make([]byte, 16)
	block[4] = 0xE8
	block[5], block[6], block[7], block[8] = 0x01, 0x00, 0x00, 0x00
	out := runE8(block, false, 0)
	if len(out) != len(block) {
		t.Fatalf("length changed: %d != %d", len(out), len(block))
	}
	if out[0] != block[0] {
		t.Fatalf("bytes before the tag byte must be untouched")
	}
}

func TestAudioChannelDeterministic(t *testing.T) {
	c1 := NewAudioChannel()
	c2 := NewAudioChannel()
	input := []byte{1, 2, 3, 4, 5, 250, 0, 128}
	for _, b := range input {
		if c1.Decode(b) != c2.Decode(b) {
			t.Fatalf("two freshly constructed channels diverged on identical input")
		}
	}
}
