package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/Brownie44l1/describer/internal/describe"
)

type languageModelDecorator struct {
	wrapped describe.LanguageModel
	logger  *slog.Logger
}

// NewLanguageModelDecorator logs every decoding step of the wrapped model at debug level.
func NewLanguageModelDecorator(wrapped describe.LanguageModel, logger *slog.Logger) describe.LanguageModel {
	return &languageModelDecorator{
		wrapped: wrapped,
		logger:  logger,
	}
}

func (l *languageModelDecorator) NextTokenLogits(ctx context.Context, sequences [][]int) ([][]float32, error) {
	t := time.Now()
	logits, err := l.wrapped.NextTokenLogits(ctx, sequences)
	if err != nil {
		l.logger.Warn("decode step failed", "beams", len(sequences), "err", err)
		return nil, err
	}
	seqLen := 0
	if len(sequences) > 0 {
		seqLen = len(sequences[0])
	}
	l.logger.Debug("decode step",
		"beams", len(sequences),
		"seq_len", seqLen,
		"dur_ms", time.Since(t).Milliseconds())
	return logits, nil
}
