package ocr

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// spreadsheetLines reads every sheet in workbook order, one line per non-empty
// row with cells joined by a space. Each sheet is one page range.
func spreadsheetLines(content []byte) ([]string, []entity.PageRange, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, common.MalformedDocument(err, "open spreadsheet")
	}
	defer func() { _ = f.Close() }()

	var lines []string
	var ranges []entity.PageRange
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, common.MalformedDocument(err, "read sheet %q", sheet)
		}
		start := len(lines)
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
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

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// wordLines returns paragraph text in document order. A table row becomes one
// line with its cells joined by a space.
func wordLines(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, common.MalformedDocument(err, "open word document")
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, common.MalformedDocument(nil, "word document has no word/document.xml")
	}
	rc, err := body.Open()
	if err != nil {
		return nil, common.MalformedDocument(err, "open word/document.xml")
	}
	defer func() { _ = rc.Close() }()

	lines, err := walkWordXML(rc)
	if err != nil {
		return nil, common.MalformedDocument(err, "parse word/document.xml")
	}
	return lines, nil
}

func walkWordXML(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines    []string
		para     strings.Builder
		row      []string
		cell     strings.Builder
		rowDepth int
		inText   bool
	)
	flushPara := func() {
		text := strings.TrimSpace(para.String())
		para.Reset()
		if rowDepth > 0 {
			if text != "" {
				if cell.Len() > 0 {
					cell.WriteByte(' ')
				}
				cell.WriteString(text)
			}
			return
		}
		lines = append(lines, text)
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte(' ')
			case "br", "cr":
				para.WriteByte(' ')
			case "tr":
				rowDepth++
				if rowDepth == 1 {
					row = row[:0]
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			case "tc":
				if rowDepth > 0 {
					if c := strings.TrimSpace(cell.String()); c != "" {
						row = append(row, c)
					}
					cell.Reset()
				}
			case "tr":
				rowDepth--
				if rowDepth == 0 && len(row) > 0 {
					lines = append(lines, strings.Join(row, " "))
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return lines, nil
}
