package ncz

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/falk/switchfs/pkg/crypto"
	"github.com/falk/switchfs/pkg/fs"
	"github.com/falk/switchfs/pkg/storage"
)

// DefaultCompressionLevel matches the reference nsz tooling.
const DefaultCompressionLevel = 18

// Compress writes s, an NCA storage, to w as a block-compressed NCZ: the
// first 0x4000 bytes verbatim, then the section crypto table, then the body
// with AES-CTR section crypto stripped and every block zstd-compressed.
// AES-XTS sections are compressed as stored, without decryption. Returns the
// number of bytes written.
//
// Section keys are resolved through opts.Keys, so the keyset must hold the
// material for every encrypted section.
func Compress(s storage.Storage, w io.WriteSeeker, level int, opts fs.NcaOptions) (int64, error) {
	nca, err := fs.OpenNcaWithOptions(s, opts)
	if err != nil {
		return 0, err
	}

	sections, err := cryptoSections(nca)
	if err != nil {
		return 0, err
	}

	totalSize, err := s.Length()
	if err != nil {
		return 0, err
	}
	if totalSize <= HeaderRegionSize {
		return 0, fmt.Errorf("ncz: nca of %#x bytes has no body to compress", totalSize)
	}

	startPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	// 1. verbatim header region
	hdr, err := storage.Split(s, 0, HeaderRegionSize)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(w, storage.NewReader(hdr)); err != nil {
		return 0, err
	}

	// 2. section crypto table
	if err := writeSectionTable(w, sections); err != nil {
		return 0, err
	}

	// 3. block header with a reserved size table, backpatched at the end
	blockSize := int64(1) << DefaultBlockSizeExp
	dataSize := totalSize - HeaderRegionSize
	blockCount := uint32((dataSize + blockSize - 1) / blockSize)

	blockHeader := BlockHeader{
		Version:          blockVersion,
		Type:             blockType,
		BlockSizeExp:     DefaultBlockSizeExp,
		BlockCount:       blockCount,
		DecompressedSize: uint64(dataSize),
	}
	copy(blockHeader.Magic[:], MagicBlock)

	if err := binary.Write(w, binary.LittleEndian, blockHeader); err != nil {
		return 0, err
	}
	sizeTableOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(make([]byte, int64(blockCount)*4)); err != nil {
		return 0, err
	}

	// 4. read, strip crypto, compress; bounded fan-out
	blocks, err := compressBlocks(s, totalSize, blockSize, blockCount, sections, level)
	if err != nil {
		return 0, err
	}

	// 5. blocks and backpatched size table
	sizes := make([]uint32, blockCount)
	for i, blk := range blocks {
		if _, err := w.Write(blk); err != nil {
			return 0, fmt.Errorf("ncz: write block %d: %w", i, err)
		}
		sizes[i] = uint32(len(blk))
	}

	endPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := w.Seek(sizeTableOffset, io.SeekStart); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, sizes); err != nil {
		return 0, err
	}
	if _, err := w.Seek(endPos, io.SeekStart); err != nil {
		return 0, err
	}

	return endPos - startPos, nil
}

// cryptoSections builds the NCZ section table from an NCA's active
// sections, resolving the key for every CTR-encrypted one.
func cryptoSections(nca *fs.NCA) ([]SectionEntry, error) {
	var sections []SectionEntry
	for _, sec := range nca.Sections() {
		fsHdr := sec.FsHeader()

		entry := SectionEntry{
			Offset:     uint64(sec.Offset()),
			Size:       uint64(sec.Size()),
			CryptoType: uint64(fsHdr.EncryptionType),
		}

		switch fsHdr.EncryptionType {
		case fs.EncryptionNone, fs.EncryptionAesXts, fs.EncryptionAesCtr:
		default:
			return nil, fmt.Errorf("ncz: section %d: %w: %s",
				sec.Index(), fs.ErrUnsupportedEncryption, fsHdr.EncryptionType)
		}

		if fsHdr.EncryptionType == fs.EncryptionAesCtr {
			key, err := sec.Key()
			if err != nil {
				return nil, fmt.Errorf("ncz: section %d key: %w", sec.Index(), err)
			}
			entry.CryptoKey = key
			entry.CryptoCounter = fsHdr.Counter()
		}

		sections = append(sections, entry)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("ncz: nca has no sections")
	}
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Offset < sections[j].Offset
	})
	return sections, nil
}

func compressBlocks(s storage.Storage, totalSize, blockSize int64, blockCount uint32, sections []SectionEntry, level int) ([][]byte, error) {
	results := make([][]byte, blockCount)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for i := uint32(0); i < blockCount; i++ {
		i := i
		g.Go(func() error {
			offset := HeaderRegionSize + int64(i)*blockSize
			size := blockSize
			if offset+size > totalSize {
				size = totalSize - offset
			}

			chunk := make([]byte, size)
			n, err := s.ReadAt(chunk, offset)
			if err != nil {
				return fmt.Errorf("ncz: read block %d: %w", i, err)
			}
			if int64(n) < size {
				return fmt.Errorf("ncz: block %d truncated: %d of %d bytes", i, n, size)
			}

			decryptRanges(chunk, offset, sections)

			compressed := compress(chunk, level)
			if len(compressed) < len(chunk) {
				results[i] = compressed
			} else {
				// incompressible, store raw
				results[i] = chunk
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// decryptRanges strips CTR crypto from the parts of chunk that intersect an
// encrypted section. chunkOffset is the chunk's absolute container offset,
// which is also the keystream position.
func decryptRanges(chunk []byte, chunkOffset int64, sections []SectionEntry) {
	chunkStart := uint64(chunkOffset)
	chunkEnd := chunkStart + uint64(len(chunk))

	for _, sec := range sections {
		if sec.CryptoType != uint64(fs.EncryptionAesCtr) {
			continue
		}

		secEnd := sec.Offset + sec.Size
		if chunkStart >= secEnd || chunkEnd <= sec.Offset {
			continue
		}

		start := max(chunkStart, sec.Offset)
		end := min(chunkEnd, secEnd)
		slice := chunk[start-chunkStart : end-chunkStart]

		block, err := crypto.NewBlockCipher(sec.CryptoKey[:])
		if err != nil {
			continue
		}
		stream := crypto.NewCTRStreamAt(block, sec.CryptoCounter[:], int64(start))
		stream.XORKeyStream(slice, slice)
	}
}
