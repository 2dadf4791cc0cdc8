package describe

import (
	"context"
	"fmt"
)

// Scorer runs a forward pass and returns one score per class.
type Scorer interface {
	Scores(ctx context.Context, tensor ImageTensor) ([]float32, error)
}

type Classifier struct {
	scorer Scorer
}

func NewClassifier(scorer Scorer) *Classifier {
	return &Classifier{scorer: scorer}
}

// Classify returns the index of the highest score. On ties the lowest index wins.
func (c *Classifier) Classify(ctx context.Context, tensor ImageTensor) (ClassLabel, error) {
	scores, err := c.scorer.Scores(ctx, tensor)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(scores) == 0 {
		return 0, fmt.Errorf("%w: model returned no scores", ErrInference)
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return ClassLabel(maxIdx), nil
}
