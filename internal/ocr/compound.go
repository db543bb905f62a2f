package ocr

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// Legacy .xls and .doc files are OLE2 compound files: a FAT of 512-byte
// sectors holding named streams.
var compoundMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	sectorSize = 512
	// Header MSAT slots; files needing a DIFAT chain are over 7 MB.
	headerMSAT = 109

	secEndOfChain = 0xFFFFFFFE
	secSpecial    = 0xFFFFFFFA
	dirEntrySize  = 128
)

func isCompoundFile(content []byte) bool {
	return bytes.HasPrefix(content, compoundMagic)
}

type compoundHeader struct {
	Magic        [8]byte
	CLSID        [16]byte
	MinorVersion uint16
	MajorVersion uint16
	ByteOrder    uint16
	SectorShift  uint16
	MiniShift    uint16
	_            [6]byte
	DirSectors   uint32
	FATSectors   uint32
	DirStart     uint32
	_            uint32
	MiniCutoff   uint32
	MiniFATStart uint32
	MiniFATCount uint32
	DIFATStart   uint32
	DIFATCount   uint32
	MSAT         [headerMSAT]uint32
}

type compoundEntry struct {
	name  string
	kind  byte
	start uint32
	size  uint32
}

// checkCompoundFile verifies the sector tables of an OLE2 file before the
// legacy readers walk them. Every chain must stay inside the table and end,
// since those readers neither bound nor recover from a bad chain.
func checkCompoundFile(content []byte) error {
	var h compoundHeader
	if err := binary.Read(bytes.NewReader(content), binary.LittleEndian, &h); err != nil {
		return common.MalformedDocument(err, "read compound file header")
	}
	if !bytes.Equal(h.Magic[:], compoundMagic) || h.ByteOrder != 0xFFFE {
		return common.MalformedDocument(nil, "not a compound file")
	}
	if h.SectorShift != 9 || h.MiniShift != 6 {
		return common.UnsupportedFormat("compound file with %d-byte sectors", 1<<h.SectorShift)
	}
	if h.DIFATCount > 0 || h.DIFATStart != secEndOfChain || h.FATSectors > headerMSAT {
		return common.UnsupportedFormat("legacy office file too large")
	}

	sectors := uint32((len(content) - sectorSize) / sectorSize)
	sector := func(sid uint32) []byte {
		if sid >= sectors {
			return nil
		}
		off := sectorSize + int(sid)*sectorSize
		return content[off : off+sectorSize]
	}

	var fat []uint32
	for i := uint32(0); i < h.FATSectors; i++ {
		s := sector(h.MSAT[i])
		if s == nil {
			return common.MalformedDocument(nil, "FAT sector %d outside the file", h.MSAT[i])
		}
		fat = append(fat, sectorValues(s, sectorSize/4)...)
	}
	if err := checkTable(fat, sectors); err != nil {
		return err
	}

	dirStream, err := readChain(content, fat, h.DirStart, sectors)
	if err != nil {
		return common.MalformedDocument(err, "directory")
	}
	entries := compoundEntries(dirStream)
	if len(entries) == 0 || entries[0].kind != 5 {
		return common.MalformedDocument(nil, "compound file has no root entry")
	}

	// The mini FAT is read as its first sector repeated for each counted sector.
	var miniFAT []uint32
	if h.MiniFATCount > 0 {
		s := sector(h.MiniFATStart)
		if s == nil {
			return common.MalformedDocument(nil, "mini FAT outside the file")
		}
		for i := uint32(0); i < h.MiniFATCount; i++ {
			miniFAT = append(miniFAT, sectorValues(s, sectorSize/4-1)...)
		}
	}
	if err := checkTable(miniFAT, uint32(len(miniFAT))); err != nil {
		return err
	}
	if _, err := chainLength(fat, entries[0].start); err != nil {
		return common.MalformedDocument(err, "mini stream")
	}

	for _, e := range entries[1:] {
		if e.kind != 2 || e.size == 0 {
			continue
		}
		table := fat
		if e.size < h.MiniCutoff {
			table = miniFAT
		}
		if _, err := chainLength(table, e.start); err != nil {
			return common.MalformedDocument(err, "stream %q", e.name)
		}
	}
	return nil
}

func sectorValues(s []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(s[i*4:])
	}
	return out
}

// checkTable requires every link to point inside the table and its target sector to exist.
func checkTable(table []uint32, limit uint32) error {
	for i, next := range table {
		if next >= secSpecial {
			continue
		}
		if next >= uint32(len(table)) || next >= limit {
			return common.MalformedDocument(nil, "sector %d links to %d outside the table", i, next)
		}
	}
	return nil
}

func chainLength(table []uint32, start uint32) (int, error) {
	n := 0
	for sid := start; sid != secEndOfChain; sid = table[sid] {
		if sid >= uint32(len(table)) {
			return 0, common.MalformedDocument(nil, "chain enters sector %d outside the table", sid)
		}
		if n++; n > len(table) {
			return 0, common.MalformedDocument(nil, "sector chain loops")
		}
	}
	return n, nil
}

func readChain(content []byte, fat []uint32, start, sectors uint32) ([]byte, error) {
	if _, err := chainLength(fat, start); err != nil {
		return nil, err
	}
	var out []byte
	for sid := start; sid != secEndOfChain; sid = fat[sid] {
		if sid >= sectors {
			return nil, common.MalformedDocument(nil, "sector %d outside the file", sid)
		}
		off := sectorSize + int(sid)*sectorSize
		out = append(out, content[off:off+sectorSize]...)
	}
	return out, nil
}

// compoundEntries lists directory entries up to the first empty one.
func compoundEntries(dir []byte) []compoundEntry {
	var out []compoundEntry
	for off := 0; off+dirEntrySize <= len(dir); off += dirEntrySize {
		e := dir[off : off+dirEntrySize]
		kind := e[0x42]
		if kind == 0 {
			break
		}
		nameLen := int(binary.LittleEndian.Uint16(e[0x40:]))
		if nameLen < 2 || nameLen > 64 {
			nameLen = 2
		}
		units := make([]uint16, nameLen/2-1)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(e[i*2:])
		}
		out = append(out, compoundEntry{
			name:  string(utf16.Decode(units)),
			kind:  kind,
			start: binary.LittleEndian.Uint32(e[0x74:]),
			size:  binary.LittleEndian.Uint32(e[0x78:]),
		})
	}
	return out
}
