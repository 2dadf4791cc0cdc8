package describe

import (
	"context"
	"fmt"
)

type Tokenizer interface {
	Encode(text string) ([]int, error)
	// Decode drops special tokens.
	Decode(ids []int) (string, error)
	EOS() int
}

type GeneratorOptions struct {
	NumBeams          int
	NoRepeatNgramSize int
	LengthPenalty     float64
}

func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		NumBeams:          5,
		NoRepeatNgramSize: 2,
		LengthPenalty:     1,
	}
}

type Generator struct {
	tokenizer Tokenizer
	model     LanguageModel
	opts      GeneratorOptions
}

func NewGenerator(tokenizer Tokenizer, model LanguageModel, opts GeneratorOptions) *Generator {
	return &Generator{
		tokenizer: tokenizer,
		model:     model,
		opts:      opts,
	}
}

// Generate continues prompt with beam search. maxLength is a token budget for the
// whole output, prompt included; the returned text starts with the prompt.
func (g *Generator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	inputIDs, err := g.tokenizer.Encode(prompt)
	if err != nil {
		return "", fmt.Errorf("%w: tokenize prompt: %w", ErrGeneration, err)
	}

	outputIDs, err := BeamSearch(ctx, g.model, inputIDs, BeamOptions{
		NumBeams:          g.opts.NumBeams,
		NoRepeatNgramSize: g.opts.NoRepeatNgramSize,
		MaxLength:         maxLength,
		EOS:               g.tokenizer.EOS(),
		LengthPenalty:     g.opts.LengthPenalty,
	})
	if err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrGeneration, err)
	}

	text, err := g.tokenizer.Decode(outputIDs)
	if err != nil {
		return "", fmt.Errorf("%w: detokenize: %w", ErrGeneration, err)
	}
	return text, nil
}
