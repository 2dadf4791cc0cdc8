package model

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/semaphore"
)

type LanguageModelOptions struct {
	ModelPath string
	// InputIDsName and LogitsName are required. AttentionMaskName and PositionIDsName
	// may be empty for exports that do not take those inputs.
	InputIDsName      string
	AttentionMaskName string
	PositionIDsName   string
	LogitsName        string
	VocabSize         int
}

// LanguageModel runs a causal language model exported without past key values.
// Every call feeds the full sequences, so input shapes change between calls.
type LanguageModel struct {
	session *ort.DynamicAdvancedSession
	opts    LanguageModelOptions
	sem     *semaphore.Weighted
}

func NewLanguageModel(opts LanguageModelOptions) (*LanguageModel, error) {
	if opts.InputIDsName == "" || opts.LogitsName == "" {
		return nil, errors.New("input ids and logits names are required")
	}
	if opts.VocabSize <= 0 {
		return nil, fmt.Errorf("invalid vocab size %d", opts.VocabSize)
	}

	inputNames := []string{opts.InputIDsName}
	if opts.AttentionMaskName != "" {
		inputNames = append(inputNames, opts.AttentionMaskName)
	}
	if opts.PositionIDsName != "" {
		inputNames = append(inputNames, opts.PositionIDsName)
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, inputNames, []string{opts.LogitsName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &LanguageModel{
		session: session,
		opts:    opts,
		sem:     semaphore.NewWeighted(1),
	}, nil
}

func (l *LanguageModel) NextTokenLogits(ctx context.Context, sequences [][]int) ([][]float32, error) {
	if len(sequences) == 0 {
		return nil, errors.New("no sequences")
	}
	seqLen := len(sequences[0])
	if seqLen == 0 {
		return nil, errors.New("empty sequence")
	}

	batch := int64(len(sequences))
	ids := make([]int64, 0, len(sequences)*seqLen)
	for i, seq := range sequences {
		if len(seq) != seqLen {
			return nil, fmt.Errorf("sequence %d has length %d, expected %d", i, len(seq), seqLen)
		}
		for _, id := range seq {
			ids = append(ids, int64(id))
		}
	}

	inputShape := ort.NewShape(batch, int64(seqLen))
	idsTensor, err := ort.NewTensor(inputShape, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	inputs := []ort.ArbitraryTensor{idsTensor}
	if l.opts.AttentionMaskName != "" {
		mask := make([]int64, len(ids))
		for i := range mask {
			mask[i] = 1
		}
		maskTensor, err := ort.NewTensor(inputShape, mask)
		if err != nil {
			return nil, fmt.Errorf("failed to create attention mask tensor: %w", err)
		}
		defer maskTensor.Destroy()
		inputs = append(inputs, maskTensor)
	}
	if l.opts.PositionIDsName != "" {
		positionTensor, err := ort.NewTensor(inputShape, positionIDs(len(sequences), seqLen))
		if err != nil {
			return nil, fmt.Errorf("failed to create position ids tensor: %w", err)
		}
		defer positionTensor.Destroy()
		inputs = append(inputs, positionTensor)
	}

	vocab := l.opts.VocabSize
	logitsTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, int64(seqLen), int64(vocab)))
	if err != nil {
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	defer logitsTensor.Destroy()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	err = l.session.Run(inputs, []ort.ArbitraryTensor{logitsTensor})
	l.sem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return lastPositionLogits(logitsTensor.GetData(), len(sequences), seqLen, vocab), nil
}

// positionIDs numbers the tokens of every row from zero. Rows are never padded.
func positionIDs(batch, seqLen int) []int64 {
	ids := make([]int64, 0, batch*seqLen)
	for b := 0; b < batch; b++ {
		for pos := 0; pos < seqLen; pos++ {
			ids = append(ids, int64(pos))
		}
	}
	return ids
}

// lastPositionLogits copies the logits of the final position of each row out of a
// [batch, seqLen, vocab] buffer.
func lastPositionLogits(data []float32, batch, seqLen, vocab int) [][]float32 {
	out := make([][]float32, batch)
	for b := range out {
		offset := (b*seqLen + seqLen - 1) * vocab
		row := make([]float32, vocab)
		copy(row, data[offset:offset+vocab])
		out[b] = row
	}
	return out
}

func (l *LanguageModel) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
}
