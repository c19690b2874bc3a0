package qr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
)

// Rasterizer renders one page of a PDF. Pages are 1-based.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, page int, scale float64) (image.Image, error)
}

// PageCounter reports the number of pages in a PDF.
type PageCounter interface {
	PageCount(pdfPath string) (int, error)
}

// PdfToPPM renders pages with the poppler pdftoppm CLI tool.
type PdfToPPM struct {
	binPath string
}

// NewPdfToPPM creates a PdfToPPM rasterizer. If binPath is empty, "pdftoppm" is used.
func NewPdfToPPM(binPath string) *PdfToPPM {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	return &PdfToPPM{binPath: binPath}
}

// Render runs pdftoppm at 72*scale DPI and decodes the PNG it writes to stdout.
func (p *PdfToPPM) Render(ctx context.Context, pdfPath string, page int, scale float64) (image.Image, error) {
	dpi := strconv.Itoa(int(math.Round(72 * scale)))
	pg := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binPath,
		"-f", pg, "-l", pg, "-r", dpi, "-png", "-singlefile", pdfPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "qr: pdftoppm failed for %s page %d: %s", pdfPath, page, stderr.String())
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, eris.Wrapf(err, "qr: decode render of %s page %d", pdfPath, page)
	}
	return img, nil
}

// PdfcpuCounter counts pages with pdfcpu.
type PdfcpuCounter struct{}

func (PdfcpuCounter) PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, eris.Wrapf(err, "qr: count pages of %s", pdfPath)
	}
	return n, nil
}
