package describe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// LanguageModel returns, for each sequence, the logits of the token following it.
// All sequences passed in one call have the same length.
type LanguageModel interface {
	NextTokenLogits(ctx context.Context, sequences [][]int) ([][]float32, error)
}

type BeamOptions struct {
	NumBeams          int
	NoRepeatNgramSize int
	// MaxLength bounds the whole sequence, prompt included.
	MaxLength int
	EOS       int
	// LengthPenalty is the exponent of the length that divides a finished score. Zero is treated as 1.
	LengthPenalty float64
}

type beam struct {
	ids  []int
	logp float64
}

type candidate struct {
	beam  int
	token int
	logp  float64
}

// BeamSearch extends prompt until MaxLength tokens or until no running beam can beat
// the finished hypotheses. It returns the best sequence, prompt included, without EOS.
func BeamSearch(ctx context.Context, lm LanguageModel, prompt []int, opts BeamOptions) ([]int, error) {
	if len(prompt) == 0 {
		return nil, errors.New("empty prompt")
	}
	if opts.NumBeams < 1 {
		opts.NumBeams = 1
	}
	if opts.LengthPenalty == 0 {
		opts.LengthPenalty = 1
	}
	if len(prompt) >= opts.MaxLength {
		return append([]int(nil), prompt...), nil
	}

	finished := newHypotheses(opts.NumBeams, opts.LengthPenalty)
	beams := []beam{{ids: append([]int(nil), prompt...)}}

	for curLen := len(prompt); curLen < opts.MaxLength; curLen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sequences := make([][]int, len(beams))
		for i, b := range beams {
			sequences[i] = b.ids
		}
		logits, err := lm.NextTokenLogits(ctx, sequences)
		if err != nil {
			return nil, err
		}
		if len(logits) != len(beams) {
			return nil, fmt.Errorf("model returned %d rows for %d beams", len(logits), len(beams))
		}

		var candidates []candidate
		for bi, b := range beams {
			logProbs := logSoftmax(logits[bi])
			banRepeatedNgrams(logProbs, b.ids, opts.NoRepeatNgramSize)
			for _, token := range topK(logProbs, 2*opts.NumBeams) {
				candidates = append(candidates, candidate{beam: bi, token: token, logp: b.logp + logProbs[token]})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].logp != candidates[j].logp {
				return candidates[i].logp > candidates[j].logp
			}
			if candidates[i].beam != candidates[j].beam {
				return candidates[i].beam < candidates[j].beam
			}
			return candidates[i].token < candidates[j].token
		})

		next := make([]beam, 0, opts.NumBeams)
		for rank, c := range candidates {
			if c.token == opts.EOS {
				if rank < opts.NumBeams {
					finished.add(beams[c.beam].ids, c.logp)
				}
				continue
			}
			ids := make([]int, len(beams[c.beam].ids), len(beams[c.beam].ids)+1)
			copy(ids, beams[c.beam].ids)
			next = append(next, beam{ids: append(ids, c.token), logp: c.logp})
			if len(next) == opts.NumBeams {
				break
			}
		}
		if len(next) == 0 {
			break
		}
		beams = next

		if finished.isDone(candidates[0].logp, curLen) {
			beams = nil
			break
		}
	}

	for _, b := range beams {
		finished.add(b.ids, b.logp)
	}
	return finished.best(), nil
}

type hypothesis struct {
	ids   []int
	score float64
}

// hypotheses keeps the numBeams best finished sequences, best first.
type hypotheses struct {
	numBeams      int
	lengthPenalty float64
	items         []hypothesis
}

func newHypotheses(numBeams int, lengthPenalty float64) *hypotheses {
	return &hypotheses{numBeams: numBeams, lengthPenalty: lengthPenalty}
}

func (h *hypotheses) normalize(logp float64, length int) float64 {
	return logp / math.Pow(float64(length), h.lengthPenalty)
}

func (h *hypotheses) add(ids []int, logp float64) {
	score := h.normalize(logp, len(ids))
	if len(h.items) >= h.numBeams && score <= h.items[len(h.items)-1].score {
		return
	}
	h.items = append(h.items, hypothesis{ids: append([]int(nil), ids...), score: score})
	sort.SliceStable(h.items, func(i, j int) bool {
		return h.items[i].score > h.items[j].score
	})
	if len(h.items) > h.numBeams {
		h.items = h.items[:h.numBeams]
	}
}

// isDone reports whether bestLogp, the best candidate score of a step scored at the
// length before that step, can no longer improve on the worst kept hypothesis.
func (h *hypotheses) isDone(bestLogp float64, length int) bool {
	if len(h.items) < h.numBeams {
		return false
	}
	return h.items[len(h.items)-1].score >= h.normalize(bestLogp, length)
}

func (h *hypotheses) best() []int {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0].ids
}

func logSoftmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxVal)
	}
	logSum := math.Log(sum) + maxVal
	for i, v := range logits {
		out[i] = float64(v) - logSum
	}
	return out
}

// banRepeatedNgrams sets to -Inf every token that would complete an n-gram already present in ids.
func banRepeatedNgrams(logProbs []float64, ids []int, n int) {
	if n <= 0 || len(ids)+1 < n {
		return
	}
	prefix := ids[len(ids)-(n-1):]
	for start := 0; start+n <= len(ids); start++ {
		match := true
		for k := 0; k < n-1; k++ {
			if ids[start+k] != prefix[k] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if token := ids[start+n-1]; token >= 0 && token < len(logProbs) {
			logProbs[token] = math.Inf(-1)
		}
	}
}

// topK returns the indices of the k largest finite values, largest first, lower index first on ties.
func topK(values []float64, k int) []int {
	if k <= 0 {
		return nil
	}
	top := make([]int, 0, k+1)
	for i, v := range values {
		if math.IsInf(v, -1) || math.IsNaN(v) {
			continue
		}
		if len(top) == k && v <= values[top[k-1]] {
			continue
		}
		pos := len(top)
		for pos > 0 && values[top[pos-1]] < v {
			pos--
		}
		top = append(top, 0)
		copy(top[pos+1:], top[pos:])
		top[pos] = i
		if len(top) > k {
			top = top[:k]
		}
	}
	return top
}
