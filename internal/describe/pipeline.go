package describe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type Preprocessor interface {
	Preprocess(img UploadedImage) (ImageTensor, error)
}

type ImageClassifier interface {
	Classify(ctx context.Context, tensor ImageTensor) (ClassLabel, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
}

// Pipeline chains preprocessing, classification and paragraph generation.
// Its collaborators are loaded once and shared by all requests.
type Pipeline struct {
	preprocessor Preprocessor
	classifier   ImageClassifier
	generator    TextGenerator
	logger       *slog.Logger
}

func NewPipeline(preprocessor Preprocessor, classifier ImageClassifier, generator TextGenerator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		preprocessor: preprocessor,
		classifier:   classifier,
		generator:    generator,
		logger:       logger,
	}
}

func (p *Pipeline) ClassifyImage(ctx context.Context, img UploadedImage) (ClassLabel, error) {
	tensor, err := p.preprocessor.Preprocess(img)
	if err != nil {
		return 0, err
	}
	class, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("image classified", "file", img.Filename, "class", int(class))
	return class, nil
}

// Describe generates req.Paragraphs paragraphs for class and joins them with a blank line.
// A failure in any paragraph discards the ones already generated.
func (p *Pipeline) Describe(ctx context.Context, req Request, class ClassLabel) ([]string, string, error) {
	if req.Paragraphs < 1 {
		return nil, "", fmt.Errorf("%w: paragraphs must be at least 1", ErrInvalidRequest)
	}

	maxLength := req.WordsPerParagraph()
	paragraphs := make([]string, 0, req.Paragraphs)
	for i := 0; i < req.Paragraphs; i++ {
		start := time.Now()
		prompt := BuildPrompt(class, req)
		paragraph, err := p.generator.Generate(ctx, prompt, maxLength)
		if err != nil {
			return nil, "", err
		}
		p.logger.Debug("paragraph generated",
			"index", i,
			"max_length", maxLength,
			"chars", len(paragraph),
			"dur_ms", time.Since(start).Milliseconds())
		paragraphs = append(paragraphs, compactParagraph(paragraph))
	}

	var b strings.Builder
	for _, paragraph := range paragraphs {
		b.WriteString(paragraph)
		b.WriteString("\n\n")
	}
	return paragraphs, strings.TrimSpace(b.String()), nil
}

// Run validates req, then classifies img and describes it. An image that cannot be
// decoded stops the run before the classifier or the generator is called.
func (p *Pipeline) Run(ctx context.Context, img UploadedImage, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	class, err := p.ClassifyImage(ctx, img)
	if err != nil {
		return Result{}, err
	}
	paragraphs, description, err := p.Describe(ctx, req, class)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Class:       class,
		Paragraphs:  paragraphs,
		Description: description,
	}, nil
}

// compactParagraph trims paragraph and removes blank lines inside it, so that a blank
// line in the joined description always separates two paragraphs.
func compactParagraph(paragraph string) string {
	lines := strings.Split(strings.TrimSpace(paragraph), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
