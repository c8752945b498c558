// Command unarrcat is a small CLI over the unarr package: list an
// archive's entries, extract all of them to a directory, or dump a
// single entry to stdout. It supports RAR, ZIP, 7z and TAR transparently,
// the same way unarr.Open auto-detects the format.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/javi11/unarr"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	cmd := os.Args[1]
	archivePath := os.Args[2]

	stream, err := unarr.NewFileStream(archivePath)
	if err != nil {
		log.Fatalf("open %s: %v", archivePath, err)
	}

	a, err := unarr.Open(stream)
	if err != nil {
		log.Fatalf("%s: %v", archivePath, err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Printf("close %s: %v", archivePath, cerr)
		}
	}()

	switch cmd {
	case "list":
		runList(a)
	case "extract":
		if len(os.Args) < 4 {
			usage()
		}
		runExtract(a, os.Args[3])
	case "cat":
		if len(os.Args) < 4 {
			usage()
		}
		runCat(a, os.Args[3])
	default:
		usage()
	}
}

func usage() {
	log.Fatalf("usage: %s list <archive> | extract <archive> <outdir> | cat <archive> <entry-name>", os.Args[0])
}

type listedEntry struct {
	Name             string `json:"name"`
	UncompressedSize uint64 `json:"uncompressedSize"`
	ModTime          string `json:"modTime"`
}

func runList(a *unarr.Archive) {
	var out []listedEntry
	for {
		ok, err := a.ParseNextEntry()
		if err != nil {
			log.Fatalf("parse entry: %v", err)
		}
		if !ok {
			break
		}
		e := a.Entry()
		out = append(out, listedEntry{
			Name:             e.Name,
			UncompressedSize: e.UncompressedSize,
			ModTime:          e.ModTime.Format("2006-01-02T15:04:05Z"),
		})
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	if comment := a.GlobalComment(); len(comment) > 0 {
		fmt.Fprintf(os.Stderr, "comment: %s\n", comment)
	}
}

func runExtract(a *unarr.Archive, outDir string) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	for {
		ok, err := a.ParseNextEntry()
		if err != nil {
			log.Fatalf("parse entry: %v", err)
		}
		if !ok {
			break
		}
		e := a.Entry()
		if strings.HasSuffix(e.Name, "/") {
			continue
		}
		outPath := filepath.Join(outDir, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			log.Fatalf("create dir for %s: %v", e.Name, err)
		}
		if err := extractEntryTo(a, outPath); err != nil {
			log.Fatalf("extract %s: %v", e.Name, err)
		}
		fmt.Printf("extracted %s (%d bytes)\n", e.Name, e.UncompressedSize)
	}
}

func runCat(a *unarr.Archive, name string) {
	ok, err := a.ParseEntryFor(name)
	if err != nil {
		log.Fatalf("find %s: %v", name, err)
	}
	if !ok {
		log.Fatalf("no such entry: %s", name)
	}
	if err := extractEntryTo(a, ""); err != nil {
		log.Fatalf("extract %s: %v", name, err)
	}
}

// extractEntryTo drains the archive's currently selected entry, either
// to a file at outPath or to stdout when outPath is empty.
func extractEntryTo(a *unarr.Archive, outPath string) error {
	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := a.Extract(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
