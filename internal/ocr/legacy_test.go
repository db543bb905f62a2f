package ocr

import (
	"context"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// fatLink rewrites FAT entry sid of a test fixture whose FAT is sector 0.
func fatLink(content []byte, sid, next uint32) []byte {
	out := append([]byte{}, content...)
	binary.LittleEndian.PutUint32(out[sectorSize+4*sid:], next)
	return out
}

func TestCheckCompoundFile(t *testing.T) {
	xlsFile := readTestdata(t, "invoice.xls")
	docFile := readTestdata(t, "invoice.doc")

	tests := []struct {
		name    string
		content []byte
		want    error
	}{
		{"workbook", xlsFile, nil},
		{"word document", docFile, nil},
		{"truncated header", xlsFile[:100], common.ErrMalformedDocument},
		{"chain loops", fatLink(xlsFile, 5, 3), common.ErrMalformedDocument},
		{"sector links to itself", fatLink(docFile, 12, 12), common.ErrMalformedDocument},
		{"link past the end of the file", fatLink(xlsFile, 5, 400), common.ErrMalformedDocument},
		{"directory chain loops", fatLink(xlsFile, 1, 1), common.ErrMalformedDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCompoundFile(tt.content)
			if tt.want == nil {
				if err != nil {
					t.Errorf("checkCompoundFile() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("checkCompoundFile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckCompoundFile_LargeFileUnsupported(t *testing.T) {
	content := append([]byte{}, readTestdata(t, "invoice.xls")...)
	// DIFAT sector count
	binary.LittleEndian.PutUint32(content[0x48:], 1)
	if err := checkCompoundFile(content); !errors.Is(err, common.ErrUnsupportedFormat) {
		t.Errorf("checkCompoundFile() error = %v, want %v", err, common.ErrUnsupportedFormat)
	}
}

func TestLegacyReaders_CyclicChainFails(t *testing.T) {
	tests := []struct {
		name string
		doc  entity.RawDocument
	}{
		{"workbook", entity.RawDocument{Filename: "a.xls", Content: fatLink(readTestdata(t, "invoice.xls"), 9, 2)}},
		{"word document", entity.RawDocument{Filename: "a.doc", Content: fatLink(readTestdata(t, "invoice.doc"), 19, 12)}},
	}
	n := newTestNormalizer(Config{}, textEngine(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() {
				_, err := n.Normalize(context.Background(), tt.doc)
				done <- err
			}()
			select {
			case err := <-done:
				if !errors.Is(err, common.ErrMalformedDocument) {
					t.Errorf("Normalize() error = %v, want %v", err, common.ErrMalformedDocument)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Normalize() did not return on a cyclic sector chain")
			}
		})
	}
}

func TestWordControlLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"paragraphs", "Счет № 1\rИтого 10,00\r", []string{"Счет № 1", "Итого 10,00"}},
		{"line and page breaks", "a\vb\fc", []string{"a", "b", "c"}},
		{"table row", "1\x07Профиль\x07100,00\x07\x07", []string{"1 Профиль 100,00"}},
		{"field keeps its result", "ООО \x13 MERGEFIELD name \x14Альфа\x15 ИНН", []string{"ООО Альфа ИНН"}},
		{"nested field", "\x13 IF \x13 PAGE \x141\x15 \x14да\x15", []string{"да"}},
		{"tab and non-breaking space", "Итого\t1 500,00", []string{"Итого 1 500,00"}},
		{"non-breaking hyphen and stray controls", "ул.\x1eМира\x01\x08", []string{"ул.-Мира"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wordControlLines(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("wordControlLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPieceTable_Malformed(t *testing.T) {
	tests := []struct {
		name string
		clx  []byte
	}{
		{"empty", nil},
		{"unknown entry", []byte{0x07}},
		{"truncated property run", []byte{0x01, 0x05}},
		{"piece table longer than the stream", []byte{0x02, 0xff, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := pieceTable(tt.clx); !errors.Is(err, common.ErrMalformedDocument) {
				t.Errorf("pieceTable() error = %v, want %v", err, common.ErrMalformedDocument)
			}
		})
	}
}

func TestNormalize_WebP(t *testing.T) {
	engine := textEngine("Счет № 3 от 10.01.2024")
	n := newTestNormalizer(Config{}, engine, nil)
	got, err := n.Normalize(context.Background(), entity.RawDocument{Filename: "scan.webp", Content: readTestdata(t, "gopher.webp")})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Format != constants.FormatImage || got.Method != constants.ExtractionOCR {
		t.Errorf("Format/Method = %s/%s, want IMAGE/ocr", got.Format, got.Method)
	}
	if engine.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls.Load())
	}
}
