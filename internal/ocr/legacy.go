package ocr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/extrame/ole2"
	"github.com/extrame/xls"
	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// BIFF8 sheets have at most 256 columns.
const xlsMaxCols = 256

// xlsLines reads a BIFF (.xls) workbook the same way spreadsheetLines reads xlsx.
func xlsLines(content []byte) (lines []string, ranges []entity.PageRange, err error) {
	if err := checkCompoundFile(content); err != nil {
		return nil, nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			lines, ranges, err = nil, nil, common.MalformedDocument(fmt.Errorf("%v", r), "read legacy workbook")
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, nil, common.MalformedDocument(err, "open legacy workbook")
	}
	if wb == nil {
		return nil, nil, common.MalformedDocument(nil, "compound file has no workbook stream")
	}

	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		start := len(lines)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := xlsRow(sheet, r)
			if row == nil {
				continue
			}
			// rows without a ROW record report no column span
			last := row.LastCol()
			if last <= row.FirstCol() {
				last = xlsMaxCols
			}
			var cells []string
			for c := row.FirstCol(); c <= last && c < xlsMaxCols; c++ {
				if v := strings.TrimSpace(xlsCell(row, c)); v != "" {
					cells = append(cells, v)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
		if len(lines) > start {
			ranges = append(ranges, entity.PageRange{Page: i + 1, Start: start, End: len(lines)})
		}
	}
	return lines, ranges, nil
}

// xlsRow returns nil for rows the sheet never defined.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func xlsCell(row *xls.Row, c int) (v string) {
	defer func() {
		if recover() != nil {
			v = ""
		}
	}()
	return row.Col(c)
}

// Word 97-2003 File Information Block offsets.
const (
	fibIdent        = 0xA5EC
	fibFlags        = 0x0A
	fibCcpText      = 0x4C
	fibFcClx        = 0x1A2
	fibLcbClx       = 0x1A6
	fibMinSize      = 0x1AA
	fibEncrypted    = 0x0100
	fibWhichTable   = 0x0200
	pieceCompressed = 0x40000000
)

// docLines returns the main document text of a Word 97-2003 (.doc) file, one
// line per paragraph. A table row becomes one line with its cells joined by a space.
func docLines(content []byte) (lines []string, err error) {
	if err := checkCompoundFile(content); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, common.MalformedDocument(fmt.Errorf("%v", r), "read word document")
		}
	}()

	streams, err := compoundStreams(content, "WordDocument", "0Table", "1Table")
	if err != nil {
		return nil, err
	}
	word := streams["WordDocument"]
	if len(word) < fibMinSize || binary.LittleEndian.Uint16(word) != fibIdent {
		return nil, common.MalformedDocument(nil, "not a Word 97-2003 document")
	}
	flags := binary.LittleEndian.Uint16(word[fibFlags:])
	if flags&fibEncrypted != 0 {
		return nil, common.UnsupportedFormat("encrypted Word document")
	}
	tableName := "0Table"
	if flags&fibWhichTable != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]

	fcClx := int64(binary.LittleEndian.Uint32(word[fibFcClx:]))
	lcbClx := int64(binary.LittleEndian.Uint32(word[fibLcbClx:]))
	if lcbClx == 0 || fcClx+lcbClx > int64(len(table)) {
		return nil, common.MalformedDocument(nil, "piece table outside the %s stream", tableName)
	}
	cps, fcs, err := pieceTable(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return nil, err
	}

	ccpText := binary.LittleEndian.Uint32(word[fibCcpText:])
	var text strings.Builder
	for k, fc := range fcs {
		from, to := cps[k], min(cps[k+1], ccpText)
		if from >= to {
			continue
		}
		piece, err := pieceText(word, fc, int(to-from))
		if err != nil {
			return nil, err
		}
		text.WriteString(piece)
	}
	return wordControlLines(text.String()), nil
}

func compoundStreams(content []byte, names ...string) (map[string][]byte, error) {
	ole, err := ole2.Open(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, common.MalformedDocument(err, "open compound file")
	}
	dir, err := ole.ListDir()
	if err != nil {
		return nil, common.MalformedDocument(err, "list compound file")
	}
	var root *ole2.File
	for _, f := range dir {
		if f.Type == ole2.ROOT {
			root = f
			break
		}
	}
	if root == nil {
		return nil, common.MalformedDocument(nil, "compound file has no root entry")
	}

	out := make(map[string][]byte, len(names))
	for _, f := range dir {
		if f.Type != ole2.USERSTREAM {
			continue
		}
		name := f.Name()
		for _, want := range names {
			if name != want {
				continue
			}
			b, err := io.ReadAll(io.LimitReader(ole.OpenFile(f, root), int64(f.Size)))
			if err != nil && len(b) < int(f.Size) {
				return nil, common.MalformedDocument(err, "read %s stream", name)
			}
			out[name] = b
		}
	}
	return out, nil
}

// pieceTable parses the Clx: property runs to skip, then the piece
// descriptors giving each text run's character range and file offset.
func pieceTable(clx []byte) (cps []uint32, fcs []uint32, err error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case 0x01:
			if i+3 > len(clx) {
				return nil, nil, common.MalformedDocument(nil, "truncated property run")
			}
			i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
		case 0x02:
			if i+5 > len(clx) {
				return nil, nil, common.MalformedDocument(nil, "truncated piece table")
			}
			lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
			plc := clx[i+5:]
			if lcb > len(plc) || lcb < 16 || (lcb-4)%12 != 0 {
				return nil, nil, common.MalformedDocument(nil, "piece table of %d bytes", lcb)
			}
			n := (lcb - 4) / 12
			cps = make([]uint32, n+1)
			for k := range cps {
				cps[k] = binary.LittleEndian.Uint32(plc[k*4:])
			}
			fcs = make([]uint32, n)
			for k := range fcs {
				fcs[k] = binary.LittleEndian.Uint32(plc[(n+1)*4+k*8+2:])
			}
			return cps, fcs, nil
		default:
			return nil, nil, common.MalformedDocument(nil, "unknown piece table entry 0x%02x", clx[i])
		}
	}
	return nil, nil, common.MalformedDocument(nil, "document has no piece table")
}

// pieceText decodes count characters stored at fc: 8-bit Windows-1252 when
// the piece is compressed, UTF-16LE otherwise.
func pieceText(word []byte, fc uint32, count int) (string, error) {
	if fc&pieceCompressed != 0 {
		off := int((fc &^ pieceCompressed) / 2)
		if off+count > len(word) {
			return "", common.MalformedDocument(nil, "text piece outside the document stream")
		}
		b, err := charmap.Windows1252.NewDecoder().Bytes(word[off : off+count])
		if err != nil {
			return "", common.MalformedDocument(err, "decode text piece")
		}
		return string(b), nil
	}
	off := int(fc)
	if off+2*count > len(word) {
		return "", common.MalformedDocument(nil, "text piece outside the document stream")
	}
	units := make([]uint16, count)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(word[off+2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// wordControlLines turns Word's control characters into lines. Field codes
// keep only their displayed result.
func wordControlLines(s string) []string {
	var b strings.Builder
	var fields []bool // true while inside a field's instruction part
	hidden := func() bool {
		for _, instr := range fields {
			if instr {
				return true
			}
		}
		return false
	}
	for _, r := range s {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if hidden() {
			continue
		}
		switch {
		case r == 0x0D || r == 0x0B || r == 0x0C:
			b.WriteByte('\n')
		case r == 0x07:
			b.WriteByte(0x07)
		case r == '\t' || r == 0xA0:
			b.WriteByte(' ')
		case r == 0x1E:
			b.WriteByte('-')
		case r < 0x20:
		default:
			b.WriteRune(r)
		}
	}
	// a cell mark followed by the row mark ends a table row
	text := strings.ReplaceAll(b.String(), "\x07\x07", "\n")
	text = strings.ReplaceAll(text, "\x07", " ")

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}
