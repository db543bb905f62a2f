package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// ImageRecognizer turns one image into text lines in the engine's reading order.
type ImageRecognizer interface {
	Name() string
	Recognize(ctx context.Context, img []byte, lang string) ([]string, error)
}

// AzureRecognizer calls the Computer Vision printed text endpoint.
type AzureRecognizer struct {
	client computervision.BaseClient
}

func NewAzureRecognizer(endpoint, key string) *AzureRecognizer {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(key)
	return &AzureRecognizer{client: client}
}

func (a *AzureRecognizer) Name() string { return "azure" }

func (a *AzureRecognizer) Recognize(ctx context.Context, img []byte, lang string) ([]string, error) {
	result, err := a.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(bytes.NewReader(img)), azureLanguage(lang))
	if err != nil {
		var de autorest.DetailedError
		if errors.As(err, &de) && de.StatusCode == http.StatusBadRequest {
			return nil, common.MalformedDocument(err, "image rejected by ocr service")
		}
		return nil, common.OCRUnavailable(err, "azure ocr request failed")
	}
	return ocrResultLines(result), nil
}

// ocrResultLines keeps only the text of each line, regions in service order.
func ocrResultLines(result computervision.OcrResult) []string {
	if result.Regions == nil {
		return nil
	}
	var lines []string
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, w := range *line.Words {
				if w.Text != nil {
					words = append(words, *w.Text)
				}
			}
			lines = append(lines, strings.Join(words, " "))
		}
		lines = append(lines, "")
	}
	return lines
}

// azureLanguage maps a tesseract style hint such as "rus+eng" to the primary language.
func azureLanguage(lang string) computervision.OcrLanguages {
	first, _, _ := strings.Cut(strings.ToLower(lang), "+")
	switch first {
	case "ru", "rus":
		return computervision.Ru
	case "en", "eng":
		return computervision.En
	}
	return computervision.Unk
}

// TesseractRecognizer runs the local Tesseract engine through its C API.
type TesseractRecognizer struct {
	TessdataDir string
}

func (t *TesseractRecognizer) Name() string { return "tesseract" }

func (t *TesseractRecognizer) Recognize(ctx context.Context, img []byte, lang string) ([]string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.run(img, lang)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return splitText(r.text), nil
	}
}

func (t *TesseractRecognizer) run(img []byte, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.TessdataDir); err != nil {
			return "", common.OCRUnavailable(err, "set tessdata dir")
		}
	}
	if lang == "" {
		lang = "rus+eng"
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return "", common.OCRUnavailable(err, "set tesseract language %q", lang)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", common.MalformedDocument(err, "tesseract could not read image")
	}
	text, err := client.Text()
	if err != nil {
		return "", common.OCRUnavailable(err, "tesseract failed")
	}
	return text, nil
}

// NewRecognizer builds the engine named in cfg.
func NewRecognizer(cfg common.OCRConfig) (ImageRecognizer, error) {
	switch cfg.Engine {
	case "azure":
		if cfg.AzureEndpoint == "" || cfg.AzureKey == "" {
			return nil, fmt.Errorf("azure ocr needs an endpoint and a key")
		}
		return NewAzureRecognizer(cfg.AzureEndpoint, cfg.AzureKey), nil
	case "", "tesseract":
		return &TesseractRecognizer{TessdataDir: cfg.TessdataDir}, nil
	}
	return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
}
