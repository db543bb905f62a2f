package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// fakeEngine stands in for the OCR service.
type fakeEngine struct {
	recognize func(ctx context.Context, img []byte) ([]string, error)
	calls     atomic.Int32
	lang      atomic.Value
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, img []byte, lang string) ([]string, error) {
	f.calls.Add(1)
	f.lang.Store(lang)
	return f.recognize(ctx, img)
}

func textEngine(lines ...string) *fakeEngine {
	return &fakeEngine{recognize: func(context.Context, []byte) ([]string, error) { return lines, nil }}
}

// fakeRenderer returns one small PNG per page.
type fakeRenderer struct {
	pages     int
	truncated bool
	gotDPI    int
	err       error
}

func (r *fakeRenderer) Render(_ context.Context, _ []byte, dpi, _ int) ([][]byte, bool, error) {
	r.gotDPI = dpi
	if r.err != nil {
		return nil, false, r.err
	}
	out := make([][]byte, r.pages)
	for i := range out {
		out[i] = testPNG(nil)
	}
	return out, r.truncated, nil
}

func testPNG(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.White)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil && t != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func testXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	_ = f.SetCellValue("Sheet1", "A1", "Счет на оплату № 12")
	_ = f.SetCellValue("Sheet1", "A3", "Итого:")
	_ = f.SetCellValue("Sheet1", "B3", "1 500,00")
	if _, err := f.NewSheet("Лист2"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	_ = f.SetCellValue("Лист2", "A1", "ИНН 7712345678")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func testDOCX(t *testing.T) []byte {
	t.Helper()
	const body = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Счет № 7 от </w:t></w:r><w:r><w:t>01.02.2024</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Профиль</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:r><w:t>Итого</w:t></w:r><w:r><w:tab/><w:t>100,00</w:t></w:r></w:p>
</w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip Create() error = %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("zip Write() error = %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func newTestNormalizer(cfg Config, engine ImageRecognizer, r PageRenderer) *Normalizer {
	return NewNormalizer(cfg, NewService(engine, 0, nil), r, nil, nil)
}

func TestNormalize_OfficeFormats(t *testing.T) {
	n := newTestNormalizer(Config{}, textEngine(), &fakeRenderer{})

	tests := []struct {
		name       string
		doc        entity.RawDocument
		wantLines  []string
		wantPages  int
		wantFormat constants.Format
	}{
		{
			name:       "spreadsheet sheets in order",
			doc:        entity.RawDocument{Filename: "a.xlsx", Content: testXLSX(t)},
			wantLines:  []string{"Счет на оплату № 12", "Итого: 1 500,00", "", "ИНН 7712345678"},
			wantPages:  2,
			wantFormat: constants.FormatSpreadsheet,
		},
		{
			name:       "word paragraphs and table rows",
			doc:        entity.RawDocument{Filename: "a.docx", Content: testDOCX(t)},
			wantLines:  []string{"Счет № 7 от 01.02.2024", "1 Профиль", "Итого 100,00"},
			wantPages:  1,
			wantFormat: constants.FormatWord,
		},
		{
			name:       "legacy workbook skips empty rows",
			doc:        entity.RawDocument{Filename: "a.xls", Content: readTestdata(t, "invoice.xls")},
			wantLines:  []string{"Счет на оплату № 15 от 03.03.2024", "Поставщик: ООО \"Профиль\"", "Итого: 2 500,00", "", "ИНН 7712345678"},
			wantPages:  2,
			wantFormat: constants.FormatSpreadsheet,
		},
		{
			name:       "legacy word document with field and table row",
			doc:        entity.RawDocument{Filename: "a.doc", Content: readTestdata(t, "invoice.doc")},
			wantLines:  []string{"Счет № 9 от 05.04.2024", "Поставщик: ООО Профиль", "1 Стеклопакет", "Total 3 200,00"},
			wantPages:  1,
			wantFormat: constants.FormatWord,
		},
		{
			name:       "windows-1251 text",
			doc:        entity.RawDocument{Filename: "a.txt", Content: cp1251(t, "Счет\r\n\r\n\r\nИтого\t 10,00  ")},
			wantLines:  []string{"Счет", "", "Итого 10,00"},
			wantPages:  1,
			wantFormat: constants.FormatText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(context.Background(), tt.doc)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got.Lines, tt.wantLines) {
				t.Errorf("Lines = %q, want %q", got.Lines, tt.wantLines)
			}
			if len(got.Pages) != tt.wantPages {
				t.Errorf("Pages = %v, want %d ranges", got.Pages, tt.wantPages)
			}
			if got.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", got.Format, tt.wantFormat)
			}
			if got.CharCount == 0 {
				t.Error("CharCount = 0, want > 0")
			}
		})
	}
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", name, err)
	}
	return b
}

func cp1251(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode cp1251: %v", err)
	}
	return b
}

func TestNormalize_Errors(t *testing.T) {
	slow := &fakeEngine{recognize: func(ctx context.Context, _ []byte) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	failing := &fakeEngine{recognize: func(context.Context, []byte) ([]string, error) {
		return nil, errors.New("connection reset")
	}}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		engine   ImageRecognizer
		renderer PageRenderer
		doc      entity.RawDocument
		want     error
	}{
		{"empty content", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.png"}, common.ErrMalformedDocument},
		{"unknown format", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.exe", Content: []byte("MZ")}, common.ErrUnsupportedFormat},
		{"corrupt spreadsheet", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.xlsx", Content: []byte("not a zip")}, common.ErrMalformedDocument},
		{"corrupt word", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.docx", Content: []byte("not a zip")}, common.ErrMalformedDocument},
		{"corrupt legacy workbook", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.xls", Content: append(append([]byte{}, compoundMagic...), "garbage"...)}, common.ErrMalformedDocument},
		{"corrupt legacy word", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.doc", Content: append(append([]byte{}, compoundMagic...), "garbage"...)}, common.ErrMalformedDocument},
		{"undecodable image", context.Background(), textEngine("x"), nil, entity.RawDocument{Filename: "a.jpg", Content: []byte("garbage")}, common.ErrMalformedDocument},
		{"blank ocr result", context.Background(), textEngine("", "  "), nil, entity.RawDocument{Filename: "a.png", Content: testPNG(t)}, common.ErrNoTextDetected},
		{"transport failure", context.Background(), failing, nil, entity.RawDocument{Filename: "a.png", Content: testPNG(t)}, common.ErrOCRUnavailable},
		{"timeout", context.Background(), slow, nil, entity.RawDocument{Filename: "a.png", Content: testPNG(t)}, common.ErrOCRUnavailable},
		{"cancelled", cancelled, textEngine("x"), nil, entity.RawDocument{Filename: "a.png", Content: testPNG(t)}, common.ErrCancelled},
		{"renderer failure", context.Background(), textEngine("x"), &fakeRenderer{err: common.MalformedDocument(nil, "bad pdf")}, entity.RawDocument{Filename: "a.pdf", Content: []byte("%PDF")}, common.ErrMalformedDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(Config{Timeout: 20 * time.Millisecond}, tt.engine, tt.renderer)
			_, err := n.Normalize(tt.ctx, tt.doc)
			if !errors.Is(err, tt.want) {
				t.Errorf("Normalize() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalize_MIMEOverridesExtension(t *testing.T) {
	n := newTestNormalizer(Config{}, textEngine("Счет № 1"), nil)
	got, err := n.Normalize(context.Background(), entity.RawDocument{Filename: "upload.bin", MIMEType: "image/png", Content: testPNG(t)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Format != constants.FormatImage || got.Method != constants.ExtractionOCR {
		t.Errorf("Format/Method = %s/%s, want IMAGE/ocr", got.Format, got.Method)
	}
}

func TestNormalize_Language(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		opts []Option
		want string
	}{
		{"default", Config{}, nil, "rus+eng"},
		{"configured", Config{Language: "rus"}, nil, "rus"},
		{"per call", Config{Language: "rus"}, []Option{WithLanguage("eng")}, "eng"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := textEngine("Счет № 1")
			n := newTestNormalizer(tt.cfg, engine, nil)
			doc := entity.RawDocument{Filename: "scan.png", Content: testPNG(t)}
			if _, err := n.Normalize(context.Background(), doc, tt.opts...); err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got, _ := engine.lang.Load().(string); got != tt.want {
				t.Errorf("engine language = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_PDFPages(t *testing.T) {
	var page atomic.Int32
	engine := &fakeEngine{recognize: func(context.Context, []byte) ([]string, error) {
		switch page.Add(1) {
		case 2:
			return nil, nil
		default:
			return []string{"страница", "текст"}, nil
		}
	}}
	r := &fakeRenderer{pages: 3, truncated: true}
	n := newTestNormalizer(Config{MaxPages: 3}, engine, r)

	got, err := n.Normalize(context.Background(), entity.RawDocument{Filename: "scan.pdf", Content: []byte("%PDF-1.4")}, WithDPI(900))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if r.gotDPI != MaxDPI {
		t.Errorf("render dpi = %d, want %d", r.gotDPI, MaxDPI)
	}
	if len(got.Warnings) != 2 {
		t.Errorf("Warnings = %q, want dpi clamp and page cap", got.Warnings)
	}
	want := []entity.PageRange{{Page: 1, Start: 0, End: 2}, {Page: 3, Start: 3, End: 5}}
	if !reflect.DeepEqual(got.Pages, want) {
		t.Errorf("Pages = %v, want %v", got.Pages, want)
	}
	if len(got.Lines) != 5 || got.Lines[2] != "" {
		t.Errorf("Lines = %q, want two pages separated by a blank line", got.Lines)
	}
}

type fakeTextLayer struct{ pages []string }

func (f fakeTextLayer) Pages(context.Context, []byte, string) ([]string, error) { return f.pages, nil }

func TestNormalize_PDFTextLayer(t *testing.T) {
	layer := fakeTextLayer{pages: []string{"Счет на оплату № 15 от 01.03.2024\nПоставщик: ООО Ромашка ИНН 7712345678\nИтого к оплате: 12 000,00 руб."}}
	engine := textEngine("ocr")

	n := NewNormalizer(Config{PreferTextLayer: true}, NewService(engine, 0, nil), &fakeRenderer{pages: 1}, layer, nil)
	got, err := n.Normalize(context.Background(), entity.RawDocument{Filename: "a.pdf", Content: []byte("%PDF")})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Method != constants.ExtractionTextLayer || engine.calls.Load() != 0 {
		t.Errorf("Method = %s with %d ocr calls, want text_layer without ocr", got.Method, engine.calls.Load())
	}

	n = NewNormalizer(Config{PreferTextLayer: true}, NewService(engine, 0, nil), &fakeRenderer{pages: 1}, fakeTextLayer{pages: []string{" "}}, nil)
	got, err = n.Normalize(context.Background(), entity.RawDocument{Filename: "a.pdf", Content: []byte("%PDF")})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Method != constants.ExtractionOCR {
		t.Errorf("Method = %s, want ocr fallback for an empty text layer", got.Method)
	}
}

// pageWriter imitates pdftoppm by writing numbered PNGs next to the prefix.
type pageWriter struct {
	pages int
	err   error
	args  []string
}

func (p *pageWriter) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	p.args = args
	if p.err != nil {
		return nil, []byte("boom"), p.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= p.pages; i++ {
		name := fmt.Sprintf("%s-%d.png", prefix, i)
		if err := os.WriteFile(name, testPNG(nil), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestPdftoppmRenderer(t *testing.T) {
	t.Run("caps pages", func(t *testing.T) {
		run := &pageWriter{pages: 3}
		r := NewPdftoppmRenderer("", run, nil)
		pages, truncated, err := r.Render(context.Background(), []byte("%PDF"), 200, 2)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if len(pages) != 2 || !truncated {
			t.Errorf("Render() = %d pages, truncated %v, want 2, true", len(pages), truncated)
		}
		if got := strings.Join(run.args[:5], " "); got != "-r 200 -png -l 3" {
			t.Errorf("args = %q, want -r 200 -png -l 3", got)
		}
	})
	t.Run("missing binary", func(t *testing.T) {
		r := NewPdftoppmRenderer("", &pageWriter{err: &exec.Error{Name: "pdftoppm", Err: exec.ErrNotFound}}, nil)
		_, _, err := r.Render(context.Background(), []byte("%PDF"), 200, 2)
		if !errors.Is(err, common.ErrOCRUnavailable) {
			t.Errorf("Render() error = %v, want OcrUnavailable", err)
		}
	})
	t.Run("corrupt pdf", func(t *testing.T) {
		r := NewPdftoppmRenderer("", &pageWriter{err: errors.New("exit status 1")}, nil)
		_, _, err := r.Render(context.Background(), []byte("junk"), 200, 2)
		if !errors.Is(err, common.ErrMalformedDocument) {
			t.Errorf("Render() error = %v, want MalformedDocument", err)
		}
	})
}

func TestSortPages(t *testing.T) {
	got := []string{filepath.Join("d", "page-10.png"), filepath.Join("d", "page-9.png"), filepath.Join("d", "page-1.png")}
	sortPages(got)
	want := []string{filepath.Join("d", "page-1.png"), filepath.Join("d", "page-9.png"), filepath.Join("d", "page-10.png")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortPages() = %v, want %v", got, want)
	}
}

func TestCachingRecognizer(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	engine := textEngine("Счет № 5")
	c := NewCachingRecognizer(engine, rdb, time.Hour, nil)

	for i := 0; i < 2; i++ {
		got, err := c.Recognize(context.Background(), []byte("img"), "rus")
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(got) != 1 || got[0] != "Счет № 5" {
			t.Errorf("Recognize() = %q, want [Счет № 5]", got)
		}
	}
	if n := engine.calls.Load(); n != 1 {
		t.Errorf("engine calls = %d, want 1", n)
	}

	mr.Close()
	if _, err := c.Recognize(context.Background(), []byte("other"), "rus"); err != nil {
		t.Errorf("Recognize() with redis down error = %v, want nil", err)
	}
}

func TestCleanLines(t *testing.T) {
	in := []string{"", "  Счет №\t1  ", "-----", "", "", "Итого\f", "", ""}
	want := []string{"Счет № 1", "", "Итого"}
	if got := cleanLines(in); !reflect.DeepEqual(got, want) {
		t.Errorf("cleanLines() = %q, want %q", got, want)
	}
}

func TestOCRResultLines(t *testing.T) {
	w := func(s string) computervision.OcrWord { return computervision.OcrWord{Text: &s} }
	result := computervision.OcrResult{Regions: &[]computervision.OcrRegion{
		{Lines: &[]computervision.OcrLine{
			{Words: &[]computervision.OcrWord{w("Счет"), w("№"), w("3")}},
			{Words: &[]computervision.OcrWord{w("ИНН"), w("7712345678")}},
		}},
	}}
	got := cleanLines(ocrResultLines(result))
	want := []string{"Счет № 3", "ИНН 7712345678"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ocrResultLines() = %q, want %q", got, want)
	}
}

func TestHeuristicConfidence(t *testing.T) {
	if got := heuristicConfidence("Счет № 1 от 01.02.2024 итого 100,00 руб."); got < 0.8 {
		t.Errorf("heuristicConfidence(invoice) = %v, want >= 0.8", got)
	}
	if got := heuristicConfidence("lorem ipsum"); got > 0.3 {
		t.Errorf("heuristicConfidence(noise) = %v, want <= 0.3", got)
	}
}
