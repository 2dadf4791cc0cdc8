package describe_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Brownie44l1/describer/internal/describe"
)

type fakeScorer struct {
	scores []float32
	err    error
	calls  int
}

func (f *fakeScorer) Scores(ctx context.Context, tensor describe.ImageTensor) ([]float32, error) {
	f.calls++
	return f.scores, f.err
}

// tableModel returns log-probabilities looked up by the whole sequence. Sequences
// without an entry get a uniform distribution.
type tableModel struct {
	vocab int
	table map[string][]float64
	err   error
	calls int
}

func newTableModel(vocab int) *tableModel {
	return &tableModel{vocab: vocab, table: map[string][]float64{}}
}

// set assigns probabilities to the tokens following seq; unlisted tokens get a tiny share.
func (m *tableModel) set(seq []int, probs map[int]float64) {
	row := make([]float64, m.vocab)
	for i := range row {
		row[i] = 1e-9
	}
	for token, p := range probs {
		row[token] = p
	}
	m.table[key(seq)] = row
}

func (m *tableModel) NextTokenLogits(ctx context.Context, sequences [][]int) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(sequences))
	for i, seq := range sequences {
		logits := make([]float32, m.vocab)
		if row, ok := m.table[key(seq)]; ok {
			for t, p := range row {
				logits[t] = float32(math.Log(p))
			}
		}
		out[i] = logits
	}
	return out, nil
}

func key(seq []int) string {
	return fmt.Sprint(seq)
}

// wordTokenizer maps space-separated words to their index in words.
type wordTokenizer struct {
	words []string
	eos   int
}

func newWordTokenizer(words ...string) *wordTokenizer {
	return &wordTokenizer{words: append(words, "<eos>"), eos: len(words)}
}

func (w *wordTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for _, field := range strings.Fields(text) {
		found := false
		for i, word := range w.words {
			if word == field {
				ids = append(ids, i)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown word %q", field)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("empty text")
	}
	return ids, nil
}

func (w *wordTokenizer) Decode(ids []int) (string, error) {
	var out []string
	for _, id := range ids {
		if id == w.eos {
			continue
		}
		if id < 0 || id >= len(w.words) {
			return "", fmt.Errorf("unknown id %d", id)
		}
		out = append(out, w.words[id])
	}
	return strings.Join(out, " "), nil
}

func (w *wordTokenizer) EOS() int {
	return w.eos
}

type fakeGenerator struct {
	text       func(call int) string
	failOnCall int
	calls      int
	prompts    []string
	maxLengths []int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.maxLengths = append(f.maxLengths, maxLength)
	if f.failOnCall == f.calls {
		return "", fmt.Errorf("%w: model crashed", describe.ErrGeneration)
	}
	if f.text != nil {
		return f.text(f.calls), nil
	}
	return prompt + " continued", nil
}
