package tokenizer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the GPT-2 byte-level BPE vocabulary.
const DefaultEncoding = "r50k_base"

const endOfText = "<|endoftext|>"

var loaderOnce sync.Once

// spacingFixes undo the space a word-level tokenizer leaves before punctuation and
// contractions. They are applied in order.
var spacingFixes = [][2]string{
	{" .", "."},
	{" ?", "?"},
	{" !", "!"},
	{" ,", ","},
	{" ' ", "'"},
	{" n't", "n't"},
	{" 'm", "'m"},
	{" 's", "'s"},
	{" 've", "'ve"},
	{" 're", "'re"},
}

type BPE struct {
	encoding *tiktoken.Tiktoken
	eos      int
}

// New loads encoding from the ranks bundled with the binary; nothing is fetched over the network.
func New(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}

	eos := enc.Encode(endOfText, []string{"all"}, nil)
	if len(eos) != 1 {
		return nil, fmt.Errorf("encoding %s has no %s token", encoding, endOfText)
	}

	return &BPE{encoding: enc, eos: eos[0]}, nil
}

func (b *BPE) Encode(text string) ([]int, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	return b.encoding.Encode(text, nil, nil), nil
}

// Decode drops end-of-text tokens and removes spaces before punctuation and contractions.
func (b *BPE) Decode(ids []int) (string, error) {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if id == b.eos {
			continue
		}
		kept = append(kept, id)
	}
	return cleanUpSpacing(b.encoding.Decode(kept)), nil
}

func cleanUpSpacing(text string) string {
	for _, fix := range spacingFixes {
		text = strings.ReplaceAll(text, fix[0], fix[1])
	}
	return text
}

func (b *BPE) EOS() int {
	return b.eos
}
