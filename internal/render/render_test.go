package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDPIForWidth(t *testing.T) {
	tests := []struct {
		name  string
		bound image.Rectangle
		width int
		want  float64
	}{
		{name: "a4 portrait", bound: image.Rect(0, 0, 595, 842), width: 768, want: 768 * 72 / 595.0},
		{name: "already at width", bound: image.Rect(0, 0, 768, 1000), width: 768, want: 72},
		{name: "empty bounds", bound: image.Rectangle{}, width: 768, want: 72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DPIForWidth(tt.bound, tt.width), 1e-9)
		})
	}
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		img.Set(x, 4, color.Black)
	}

	data, err := EncodeJPEG(img, 80)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 8, decoded.Bounds().Dy())
}

func TestNewFitzRenderer_Defaults(t *testing.T) {
	r := NewFitzRenderer(0, 0)
	assert.Equal(t, 768, r.Width)
	assert.Equal(t, jpeg.DefaultQuality, r.Quality)
}

func TestFitzRenderer_OpenMissing(t *testing.T) {
	_, err := NewFitzRenderer(768, 85).Open("does-not-exist.pdf")
	assert.Error(t, err)
}
