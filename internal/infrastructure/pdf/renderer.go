// Package pdf rasterizes PDF documents with MuPDF
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Config controls the output image
type Config struct {
	Format  string // png or jpeg
	Quality int    // jpeg quality
}

// Renderer implements port.PDFRenderer
type Renderer struct {
	cfg    Config
	logger *zap.Logger
}

// NewRenderer creates a new PDF renderer
func NewRenderer(cfg Config, logger *zap.Logger) *Renderer {
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// RenderFirstPage renders page one of pdf and returns the encoded image
func (r *Renderer) RenderFirstPage(ctx context.Context, pdf []byte) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, "", fmt.Errorf("PDF has no pages")
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render first page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, mimeType, err := r.encode(img)
	if err != nil {
		return nil, "", err
	}

	r.logger.Debug("Rendered PDF first page",
		zap.Int("total_pages", doc.NumPage()),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Int("size_bytes", len(data)))

	return data, mimeType, nil
}

func (r *Renderer) encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	switch r.cfg.Format {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.Quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
}
