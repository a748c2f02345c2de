// Package render rasterises document pages for the correction step.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
)

// Renderer opens documents for page rendering
type Renderer interface {
	Open(path string) (Document, error)
}

// Document is an opened source document
type Document interface {
	NumPage() int
	JPEG(page int) ([]byte, error)
	Close() error
}

// FitzRenderer renders pages with MuPDF at a fixed target width
type FitzRenderer struct {
	Width   int
	Quality int
}

// NewFitzRenderer creates a renderer producing JPEGs width pixels wide
func NewFitzRenderer(width, quality int) *FitzRenderer {
	if width <= 0 {
		width = 768
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &FitzRenderer{Width: width, Quality: quality}
}

// Open opens the document at path
func (r *FitzRenderer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", path, err)
	}
	return &fitzDocument{doc: doc, width: r.Width, quality: r.Quality}, nil
}

type fitzDocument struct {
	doc     *fitz.Document
	width   int
	quality int
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) JPEG(page int) ([]byte, error) {
	bound, err := d.doc.Bound(page)
	if err != nil {
		return nil, fmt.Errorf("failed to read bounds of page %d: %w", page, err)
	}

	img, err := d.doc.ImageDPI(page, DPIForWidth(bound, d.width))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	return EncodeJPEG(img, d.quality)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

// DPIForWidth returns the resolution at which a page with the given
// 72 dpi bounds renders width pixels wide.
func DPIForWidth(bound image.Rectangle, width int) float64 {
	if bound.Dx() <= 0 {
		return 72
	}
	return float64(width) * 72 / float64(bound.Dx())
}

// EncodeJPEG encodes img at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
