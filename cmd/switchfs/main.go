// Command switchfs inspects and unpacks Switch content containers: NCA
// archives, PFS0/NSP bundles and NCZ-compressed NCAs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/falk/switchfs/pkg/fs"
	"github.com/falk/switchfs/pkg/keys"
	"github.com/falk/switchfs/pkg/ncz"
	"github.com/falk/switchfs/pkg/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: switchfs [-k prod.keys] <command> ...

commands:
  info <file>                     show NCA/PFS0/NCZ layout
  extract <file> <outdir>         extract PFS0/NSP contents
  dump <nca> <section> <outfile>  write a decrypted NCA section
  compress <nca> <outfile>        compress an NCA to NCZ
  decompress <ncz> <outfile>      inflate an NCZ
`)
	os.Exit(2)
}

func main() {
	keysPath := flag.String("k", "", "path to prod.keys")
	level := flag.Int("l", ncz.DefaultCompressionLevel, "zstd compression level (1-22)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 2 {
		usage()
	}

	ks := keys.Default()
	var err error
	if *keysPath != "" {
		err = ks.Load(*keysPath)
	} else {
		err = ks.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load keys: %v\n", err)
	} else if err := ks.Derive(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: key derivation incomplete: %v\n", err)
	}

	cmd, path := flag.Arg(0), flag.Arg(1)
	switch cmd {
	case "info":
		err = runInfo(path)
	case "extract":
		if flag.NArg() < 3 {
			usage()
		}
		err = runExtract(path, flag.Arg(2))
	case "dump":
		if flag.NArg() < 4 {
			usage()
		}
		err = runDump(path, flag.Arg(2), flag.Arg(3))
	case "compress":
		if flag.NArg() < 3 {
			usage()
		}
		err = runCompress(path, flag.Arg(2), *level)
	case "decompress":
		if flag.NArg() < 3 {
			usage()
		}
		err = runDecompress(path, flag.Arg(2))
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "switchfs: %v\n", err)
		os.Exit(1)
	}
}

func runInfo(path string) error {
	s, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	defer s.Close()

	if p, err := fs.OpenPFS0(s); err == nil {
		fmt.Printf("PFS0 with %d files:\n", len(p.Files()))
		for _, f := range p.Files() {
			fmt.Printf("  %-40s %12d bytes\n", f.Name(), f.Size())
		}
		return nil
	}

	if n, err := ncz.Open(s); err == nil {
		fmt.Printf("NCZ, %d crypto sections", len(n.Sections()))
		if n.BlockCompressed() {
			fmt.Printf(", block compressed, body %d bytes", n.BodySize())
		}
		fmt.Println()
		return nil
	}

	nca, err := fs.OpenNca(s)
	if err != nil {
		return fmt.Errorf("%s is not a PFS0, NCZ or NCA: %w", path, err)
	}
	return printNca(nca)
}

func printNca(nca *fs.NCA) error {
	hdr := nca.Header
	fmt.Printf("NCA%d %s content, program id %s, size %d\n",
		hdr.Version(), hdr.ContentType, hdr.ProgramId, hdr.ContentSize)
	if !hdr.RightsId.IsZero() {
		fmt.Printf("rights id %s\n", hdr.RightsId)
	}

	for _, sec := range nca.Sections() {
		fsHdr := sec.FsHeader()
		fmt.Printf("  section %d: %s, %s crypto, %s hash, %#x+%#x\n",
			sec.Index(), fsHdr.FsType, fsHdr.EncryptionType, fsHdr.HashType,
			sec.Offset(), sec.Size())
	}
	return nil
}

func runExtract(path, outDir string) error {
	s, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := fs.OpenPFS0(s)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	// pick up title keys from any tickets in the bundle first
	for _, f := range p.Files() {
		if strings.EqualFold(filepath.Ext(f.Name()), ".tik") {
			if err := ingestTicket(f); err != nil {
				fmt.Fprintf(os.Stderr, "warning: ticket %s: %v\n", f.Name(), err)
			}
		}
	}

	for _, f := range p.Files() {
		data, err := f.Data()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name(), err)
		}

		out, err := os.Create(filepath.Join(outDir, filepath.Base(f.Name())))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, storage.NewReader(data)); err != nil {
			out.Close()
			return fmt.Errorf("%s: %w", f.Name(), err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		fmt.Printf("extracted %s (%d bytes)\n", f.Name(), f.Size())
	}
	return nil
}

// ingestTicket reads the rights ID and encrypted title key from a common
// ticket and stores them in the default keyset.
func ingestTicket(f fs.File) error {
	const (
		titleKeyOffset = 0x180
		rightsIdOffset = 0x2A0
	)

	data, err := f.Data()
	if err != nil {
		return err
	}

	buf := make([]byte, 0x2B0)
	n, err := data.ReadAt(buf, 0)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return fmt.Errorf("ticket truncated")
	}

	var id keys.RightsId
	copy(id[:], buf[rightsIdOffset:rightsIdOffset+0x10])
	if id.IsZero() {
		return fmt.Errorf("ticket has no rights id")
	}

	var tkey keys.TitleKey
	copy(tkey[:], buf[titleKeyOffset:titleKeyOffset+0x10])
	keys.Default().InsertTitleKey(id, tkey)
	fmt.Printf("ticket %s: titlekey for %s\n", f.Name(), id)
	return nil
}

func runDump(path, sectionArg, outPath string) error {
	index, err := strconv.Atoi(sectionArg)
	if err != nil {
		return fmt.Errorf("section must be 0-3: %w", err)
	}

	s, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	defer s.Close()

	nca, err := fs.OpenNca(s)
	if err != nil {
		return err
	}

	sec := nca.Section(index)
	if sec == nil {
		return fmt.Errorf("section %d is not active", index)
	}
	dec, err := sec.OpenDecrypted()
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	// copying with a large buffer beats io.Copy's default by a wide margin
	buf := make([]byte, 16*1024*1024)
	var off int64
	for {
		n, err := dec.ReadAt(buf, off)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
		off += int64(n)
	}
	fmt.Printf("dumped section %d (%d bytes)\n", index, off)
	return out.Close()
}

func runCompress(path, outPath string, level int) error {
	if level < 1 || level > 22 {
		level = ncz.DefaultCompressionLevel
	}

	s, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := ncz.Compress(s, out, level, fs.NcaOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", outPath, n)
	return out.Close()
}

func runDecompress(path, outPath string) error {
	s, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := ncz.Open(s)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := n.Decompress(out); err != nil {
		return err
	}
	return out.Close()
}
