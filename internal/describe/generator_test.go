package describe_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Brownie44l1/describer/internal/describe"
)

var _ = Describe("Generator", func() {
	ctx := context.Background()

	var (
		tok *wordTokenizer
		lm  *tableModel
		gen *describe.Generator
	)

	BeforeEach(func() {
		// ids: a=0 cat=1 sat=2 on=3 mat=4 <eos>=5
		tok = newWordTokenizer("a", "cat", "sat", "on", "mat")
		lm = newTableModel(6)
		lm.set([]int{0, 1}, map[int]float64{2: 0.9, 3: 0.1})
		lm.set([]int{0, 1, 2}, map[int]float64{3: 0.9, 4: 0.1})
		lm.set([]int{0, 1, 2, 3}, map[int]float64{0: 0.9, 4: 0.1})
		lm.set([]int{0, 1, 2, 3, 0}, map[int]float64{4: 0.9, 1: 0.1})
		lm.set([]int{0, 1, 2, 3, 0, 4}, map[int]float64{5: 0.99, 1: 0.01})
		gen = describe.NewGenerator(tok, lm, describe.DefaultGeneratorOptions())
	})

	It("continues the prompt and keeps it in the output", func() {
		text, err := gen.Generate(ctx, "a cat", 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("a cat sat on a mat"))
	})

	It("counts the prompt against the token budget", func() {
		text, err := gen.Generate(ctx, "a cat", 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("a cat sat on"))
	})

	It("returns the prompt when the budget is already spent", func() {
		text, err := gen.Generate(ctx, "a cat sat", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("a cat sat"))
		Expect(lm.calls).To(BeZero())
	})

	It("produces the same text for the same prompt", func() {
		first, err := gen.Generate(ctx, "a cat", 20)
		Expect(err).NotTo(HaveOccurred())
		second, err := gen.Generate(ctx, "a cat", 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("wraps tokenizer failures as generation errors", func() {
		_, err := gen.Generate(ctx, "a dog", 20)
		Expect(errors.Is(err, describe.ErrGeneration)).To(BeTrue())
	})

	It("wraps model failures as generation errors", func() {
		lm.err = errors.New("out of memory")
		_, err := gen.Generate(ctx, "a cat", 20)
		Expect(errors.Is(err, describe.ErrGeneration)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("out of memory")))
	})
})
