package ocr

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// minTextRunes is the amount of readable text below which a text layer is
// treated as missing (scanned statements).
const minTextRunes = 40

// NewExtractor creates an Extractor based on config. With the mistral
// provider the local text layer is still tried first.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	local := NewPdfToText(cfg.PdfToTextPath, cfg.MaxPages)
	switch cfg.Provider {
	case "local", "":
		return local, nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		remote := NewMistralOCR(cfg.MistralKey, cfg.MistralModel, WithMaxPages(cfg.MaxPages))
		return Chain{local, remote}, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// Chain tries each extractor in order and returns the first result with a
// usable amount of text. Extractor errors move on to the next one; the
// last error is returned when none succeeds.
type Chain []Extractor

// ExtractText implements Extractor.
func (c Chain) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var (
		best    string
		lastErr error
	)
	for i, ex := range c {
		text, err := ex.ExtractText(ctx, pdfPath)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			zap.L().Debug("ocr: extractor failed",
				zap.Int("index", i),
				zap.String("path", pdfPath),
				zap.Error(err))
			lastErr = err
			continue
		}
		if Usable(text) {
			return text, nil
		}
		if len(text) > len(best) {
			best = text
		}
	}
	if best != "" || lastErr == nil {
		return best, nil
	}
	return "", lastErr
}

// Usable reports whether text holds enough letters and digits to parse.
func Usable(text string) bool {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
			if n >= minTextRunes {
				return true
			}
		}
	}
	return false
}

// Normalize collapses runs of blank lines and trailing spaces left by layout
// extraction.
func Normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\f")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
