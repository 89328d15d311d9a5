package pdf

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A one-page, 1x1 inch blank PDF. MuPDF rebuilds the missing xref table.
var blankPDF = []byte(`%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >> endobj
trailer << /Root 1 0 R >>
%%EOF
`)

func TestRenderer_RenderFirstPagePNG(t *testing.T) {
	r := NewRenderer(Config{}, zap.NewNop())

	data, mimeType, err := r.RenderFirstPage(context.Background(), blankPDF)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
}

func TestRenderer_JPEG(t *testing.T) {
	r := NewRenderer(Config{Format: "jpeg", Quality: 70}, zap.NewNop())

	data, mimeType, err := r.RenderFirstPage(context.Background(), blankPDF)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.True(t, bytes.HasPrefix(data, []byte{0xff, 0xd8}))
}

func TestRenderer_RejectsGarbage(t *testing.T) {
	r := NewRenderer(Config{}, zap.NewNop())

	_, _, err := r.RenderFirstPage(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestRenderer_CanceledContext(t *testing.T) {
	r := NewRenderer(Config{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.RenderFirstPage(ctx, blankPDF)
	assert.ErrorIs(t, err, context.Canceled)
}
