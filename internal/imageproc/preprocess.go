package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/describer/internal/describe"
)

const (
	DefaultSize = 224
	channels    = 3
)

type Preprocessor struct {
	Width  int
	Height int
}

func New() *Preprocessor {
	return &Preprocessor{Width: DefaultSize, Height: DefaultSize}
}

// Preprocess decodes img and converts it to a (1, 3, Height, Width) tensor with values in [0, 1].
func (p *Preprocessor) Preprocess(img describe.UploadedImage) (describe.ImageTensor, error) {
	declared := normalizeFormat(img.Format)
	if declared != "" && !supported(declared) {
		return describe.ImageTensor{}, fmt.Errorf("%w: unsupported format %q, supported: jpeg, png", describe.ErrDecode, img.Format)
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return describe.ImageTensor{}, fmt.Errorf("%w: %w", describe.ErrDecode, err)
	}
	if !supported(format) {
		return describe.ImageTensor{}, fmt.Errorf("%w: unsupported format %q, supported: jpeg, png", describe.ErrDecode, format)
	}

	return p.ToTensor(decoded), nil
}

// ToTensor resizes src to the preprocessor's size, ignoring aspect ratio, and lays it out channel-first.
func (p *Preprocessor) ToTensor(src image.Image) describe.ImageTensor {
	resized := resize.Resize(uint(p.Width), uint(p.Height), src, resize.Bicubic)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	data := make([]float32, channels*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			data[pixelIndex] = float32(r>>8) / 255.0
			data[plane+pixelIndex] = float32(g>>8) / 255.0
			data[2*plane+pixelIndex] = float32(b>>8) / 255.0
		}
	}

	return describe.ImageTensor{
		Shape: [4]int64{1, channels, int64(height), int64(width)},
		Data:  data,
	}
}

// Format guesses the declared format of an upload from its file name, falling back to the content type.
func Format(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	switch contentType {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	}
	return ""
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

func supported(format string) bool {
	return format == "jpeg" || format == "png"
}
