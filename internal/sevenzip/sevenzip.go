// Package sevenzip is the §4.12 "thin adapter over an embedded 7z SDK,
// treated as external" component. No original_source/ directory exists
// for 7z (unlike RAR/ZIP/TAR, nothing under original_source/ext/unarr/7z/
// was retrieved for this port), so there is no C parser to port here the
// way raruncompress/zipinflate/tarparse were ported. Instead this package
// wraps github.com/javi11/sevenzip — a real, go.mod-required archive/zip-
// shaped 7z reader — behind the same thin Directory/Entry shape the other
// format packages expose, so the root package's dispatcher can treat 7z as
// a black-box codec exactly as §9's open question says to.
package sevenzip

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	upstream "github.com/javi11/sevenzip"
)

// Signature is the 6-byte 7z magic at offset 0 ("7z\xBC\xAF\x27\x1C").
var Signature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// ErrEncrypted is returned by Open when the archive's header itself is
// AES-encrypted and no password was supplied — the SDK can't even list
// entries in that case, matching §7's Unsupported-for-encrypted policy.
var ErrEncrypted = errors.New("sevenzip: encrypted archive header, password required")

// Probe reports whether buf (the first bytes of a stream) carries the 7z
// signature. The dispatcher calls this before attempting the heavier
// Open/SDK validation (§4.12: "7z (signature + SDK validation)").
func Probe(buf []byte) bool {
	if len(buf) < len(Signature) {
		return false
	}
	for i, b := range Signature {
		if buf[i] != b {
			return false
		}
	}
	return true
}

// Entry is one file/directory record from the archive's header block.
// UncompressedSize and Modified come straight from upstream.File's own
// FileHeader; IsEncrypted lets the caller surface §7's Unsupported kind
// without having to attempt (and fail) an Open first.
type Entry struct {
	Name          string
	UncompressedSize uint64
	Modified      time.Time
	IsDir         bool
	IsEncrypted   bool

	file *upstream.File
}

// Open returns a reader over this entry's decompressed bytes. The
// upstream library does the actual LZMA/LZMA2/BZip2/PPMd/Delta/BCJ
// decoding internally — exactly the "embedded SDK" the spec describes —
// so this is a pure pass-through.
func (e *Entry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: open %q: %w", e.Name, err)
	}
	return rc, nil
}

// Directory is an opened 7z archive's entry list (§3's Archive variant
// SevenZ). Unlike RAR/ZIP/TAR, the upstream library parses the whole
// header up front, so there's no incremental parse-next-entry state to
// hold here beyond the slice itself.
type Directory struct {
	rc      *upstream.ReadCloser // non-nil only when Open(path) owns its own file handle
	Entries []*Entry
}

// Open parses a 7z archive given random access to its bytes. password may
// be empty; an encrypted header without one surfaces ErrEncrypted rather
// than whatever opaque error the SDK itself raises, matching this port's
// house style of normalizing third-party errors into one of our own
// sentinels at the package boundary.
func Open(ra io.ReaderAt, size int64, password string) (*Directory, error) {
	var r *upstream.Reader
	var err error
	if password != "" {
		r, err = upstream.NewReaderWithPassword(ra, size, password)
	} else {
		r, err = upstream.NewReader(ra, size)
	}
	if err != nil {
		if password == "" && looksPasswordRelated(err) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("sevenzip: %w", err)
	}
	return newDirectory(nil, r), nil
}

// OpenFile is the path-based variant, used when the caller already has a
// filesystem path rather than a generic Stream (e.g. direct CLI use) and
// wants the SDK to own its own file handle.
func OpenFile(path, password string) (*Directory, error) {
	var rc *upstream.ReadCloser
	var err error
	if password != "" {
		rc, err = upstream.OpenReaderWithPassword(path, password)
	} else {
		rc, err = upstream.OpenReader(path)
	}
	if err != nil {
		if password == "" && looksPasswordRelated(err) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("sevenzip: %w", err)
	}
	return newDirectory(rc, &rc.Reader), nil
}

func newDirectory(rc *upstream.ReadCloser, r *upstream.Reader) *Directory {
	d := &Directory{rc: rc}
	d.Entries = make([]*Entry, len(r.File))
	for i, f := range r.File {
		d.Entries[i] = &Entry{
			Name:             f.Name,
			UncompressedSize: f.UncompressedSize,
			Modified:         f.Modified,
			IsDir:            f.FileInfo().IsDir(),
			IsEncrypted:      f.Encrypted,
			file:             f,
		}
	}
	return d
}

// Close releases resources OpenFile opened. Open (the io.ReaderAt variant)
// doesn't own the underlying stream — per §3's Archive lifetime rule, the
// caller's stream is only closed by its own owner — so Close is a no-op
// in that case.
func (d *Directory) Close() error {
	if d.rc == nil {
		return nil
	}
	return d.rc.Close()
}

// looksPasswordRelated is a best-effort classification: the upstream SDK
// doesn't export a sentinel for "this archive needs a password", so this
// matches on the error text the way this port's other adapters fall back
// to substring matching only at a genuine third-party API boundary.
func looksPasswordRelated(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
