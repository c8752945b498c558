package unarr

import "fmt"

// probeFormat tries each supported format's probe in §4.12's fixed
// order — RAR, ZIP, 7z, TAR — and returns the backend the first match
// constructs. Unlike a content-sniffing fallback, the first probe to
// succeed wins outright; a format whose probe passes but whose full
// parse then fails surfaces that parse's own error rather than falling
// through to try the next format.
func probeFormat(stream Stream) (backend, error) {
	if ok, err := probeRAR(stream); err != nil {
		return nil, err
	} else if ok {
		return newRARArchive(stream)
	}

	if ok, err := probeZIP(stream); err != nil {
		return nil, err
	} else if ok {
		return newZIPArchive(stream)
	}

	if ok, err := probeSevenZip(stream); err != nil {
		return nil, err
	} else if ok {
		return newSevenZipArchive(stream, stream.Size())
	}

	if ok, err := probeTAR(stream); err != nil {
		return nil, err
	} else if ok {
		return newTARArchive(stream)
	}

	return nil, fmt.Errorf("%w: no recognized RAR/ZIP/7z/TAR signature", ErrBadSignature)
}
