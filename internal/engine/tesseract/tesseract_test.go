package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// textImage draws lines with the basic bitmap font and scales the result up
// so Tesseract has enough pixels to work with.
func textImage(t *testing.T, lines ...string) []byte {
	t.Helper()
	small := image.NewGray(image.Rect(0, 0, 160, 16*len(lines)+8))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: small, Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	for i, l := range lines {
		d.Dot = fixed.P(4, 14+16*i)
		d.DrawString(l)
	}

	big := image.NewGray(image.Rect(0, 0, small.Bounds().Dx()*4, small.Bounds().Dy()*4))
	xdraw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, big))
	return buf.Bytes()
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New()
	if err != nil {
		t.Skipf("tesseract not usable here: %v", err)
	}
	return eng
}

func TestRecognize_TableMarkup(t *testing.T) {
	eng := newEngine(t)

	var out []string
	err := eng.Recognize(context.Background(), engine.Request{
		Image:    textImage(t, "ITEM    QTY", "PENS    12"),
		Filename: "a.png",
		Mode:     models.SessionTypeTable,
	}, func(s string) error {
		out = append(out, s)
		return nil
	})
	require.NoError(t, err)

	joined := strings.Join(out, "")
	assert.True(t, strings.HasPrefix(joined, "<table>"), joined)
	assert.True(t, strings.HasSuffix(joined, "</table>"), joined)
}

func TestRecognize_Text(t *testing.T) {
	eng := newEngine(t)

	var out strings.Builder
	err := eng.Recognize(context.Background(), engine.Request{
		Image: textImage(t, "HELLO WORLD"),
		Mode:  models.SessionTypeText,
	}, func(s string) error {
		out.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(out.String()), "HELLO")
}

func TestRecognize_CancelledContext(t *testing.T) {
	eng := newEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := eng.Recognize(ctx, engine.Request{Image: textImage(t, "X"), Mode: models.SessionTypeText}, func(string) error {
		t.Fatal("nothing should be emitted")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecognize_BadImage(t *testing.T) {
	eng := newEngine(t)
	err := eng.Recognize(context.Background(), engine.Request{Image: []byte("not an image"), Mode: models.SessionTypeText}, func(string) error { return nil })
	assert.Error(t, err)
}
