package ocr

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// preprocess decodes an image, converts it to a high contrast grayscale PNG and
// shrinks it to fit maxSide when the engine has a size limit.
func preprocess(img []byte, maxSide int) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(img), imaging.AutoOrientation(true))
	if err != nil {
		return nil, common.MalformedDocument(err, "decode image")
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, common.MalformedDocument(nil, "image has no pixels")
	}

	out := imaging.Grayscale(src)
	out = imaging.AdjustContrast(out, 20)
	out = imaging.Sharpen(out, 1.0)
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		out = imaging.Fit(out, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
