package describe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecode         = errors.New("decode error")
	ErrInference      = errors.New("inference error")
	ErrGeneration     = errors.New("generation error")
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	MinLength     = 100
	MaxLength     = 1000
	LengthStep    = 10
	MinParagraphs = 1
	MaxParagraphs = 5

	DefaultLength     = 100
	DefaultParagraphs = 3
)

type Style string

const (
	StyleFormal   Style = "formal"
	StyleInformal Style = "informal"
)

// Styles lists the writing styles in the order the form offers them.
var Styles = []Style{StyleFormal, StyleInformal}

func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleFormal:
		return StyleFormal, nil
	case StyleInformal:
		return StyleInformal, nil
	}
	return "", fmt.Errorf("%w: unknown writing style %q", ErrInvalidRequest, s)
}

// ClassLabel is an index into the classifier's output vector. No label names are resolved.
type ClassLabel int

// UploadedImage is the raw content of one upload. Format is the declared format
// (jpeg or png), not necessarily what the bytes contain.
type UploadedImage struct {
	Data     []byte
	Format   string
	Filename string
}

// ImageTensor is a batch-first, channel-first float tensor.
type ImageTensor struct {
	Shape [4]int64
	Data  []float32
}

type Request struct {
	Style      Style
	Length     int
	Paragraphs int
}

func DefaultRequest() Request {
	return Request{
		Style:      StyleFormal,
		Length:     DefaultLength,
		Paragraphs: DefaultParagraphs,
	}
}

func (r Request) Validate() error {
	if r.Style != StyleFormal && r.Style != StyleInformal {
		return fmt.Errorf("%w: unknown writing style %q", ErrInvalidRequest, r.Style)
	}
	if r.Length < MinLength || r.Length > MaxLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]", ErrInvalidRequest, r.Length, MinLength, MaxLength)
	}
	if r.Length%LengthStep != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of %d", ErrInvalidRequest, r.Length, LengthStep)
	}
	if r.Paragraphs < MinParagraphs || r.Paragraphs > MaxParagraphs {
		return fmt.Errorf("%w: paragraphs %d outside [%d, %d]", ErrInvalidRequest, r.Paragraphs, MinParagraphs, MaxParagraphs)
	}
	return nil
}

// WordsPerParagraph is the integer share of Length for one paragraph.
// It is also the token budget handed to the generator for each paragraph.
func (r Request) WordsPerParagraph() int {
	if r.Paragraphs < 1 {
		return 0
	}
	return r.Length / r.Paragraphs
}

type Result struct {
	Class       ClassLabel
	Paragraphs  []string
	Description string
}
