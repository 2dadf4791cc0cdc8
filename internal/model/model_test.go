package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Brownie44l1/describer/internal/describe"
)

var _ = Describe("Metadata", func() {
	It("fills in tensor names and image size", func() {
		m := Metadata{InputShape: []int64{1, 3, 224, 224}, OutputShape: []int64{1, 1000}}
		m.applyDefaults()
		Expect(m.InputName).To(Equal("input"))
		Expect(m.OutputName).To(Equal("output"))
		Expect(m.ImageSize).To(Equal(224))
		Expect(m.InputSize()).To(Equal(3 * 224 * 224))
		Expect(m.NumClasses()).To(Equal(1000))
		Expect(m.validate()).To(Succeed())
	})

	It("keeps explicit names", func() {
		m := Metadata{InputShape: []int64{1, 3, 32, 32}, OutputShape: []int64{1, 10}, InputName: "pixel_values", OutputName: "logits", ImageSize: 32}
		m.applyDefaults()
		Expect(m.InputName).To(Equal("pixel_values"))
		Expect(m.OutputName).To(Equal("logits"))
	})

	It("requires a 4-dimensional input", func() {
		m := Metadata{InputShape: []int64{3, 224, 224}, OutputShape: []int64{1, 1000}}
		Expect(m.validate()).NotTo(Succeed())
	})
})

var _ = Describe("NewClassifier", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("fails when the metadata file is missing", func() {
		_, err := NewClassifier(filepath.Join(dir, "m.onnx"), filepath.Join(dir, "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("failed to read metadata")))
	})

	It("fails on malformed metadata", func() {
		path := filepath.Join(dir, "m.json")
		Expect(os.WriteFile(path, []byte("{"), 0o644)).To(Succeed())
		_, err := NewClassifier(filepath.Join(dir, "m.onnx"), path)
		Expect(err).To(MatchError(ContainSubstring("failed to parse metadata")))
	})

	It("fails on metadata without an input shape", func() {
		path := filepath.Join(dir, "m.json")
		Expect(os.WriteFile(path, []byte(`{"output_shape": [1, 1000]}`), 0o644)).To(Succeed())
		_, err := NewClassifier(filepath.Join(dir, "m.onnx"), path)
		Expect(err).To(MatchError(ContainSubstring("invalid metadata")))
	})
})

var _ = Describe("Classifier.Scores", func() {
	var classifier *Classifier

	BeforeEach(func() {
		metadata := Metadata{InputShape: []int64{1, 3, 224, 224}, OutputShape: []int64{1, 1000}}
		metadata.applyDefaults()
		classifier = &Classifier{Metadata: metadata}
	})

	It("reports a tensor of another shape as an inference error", func() {
		tensor := describe.ImageTensor{Shape: [4]int64{1, 3, 32, 32}, Data: make([]float32, 3*32*32)}
		_, err := classifier.Scores(context.Background(), tensor)
		Expect(errors.Is(err, describe.ErrInference)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("expected input shape [1 3 224 224], got [1 3 32 32]")))
	})

	It("reports a tensor with missing values as an inference error", func() {
		tensor := describe.ImageTensor{Shape: [4]int64{1, 3, 224, 224}, Data: make([]float32, 10)}
		_, err := classifier.Scores(context.Background(), tensor)
		Expect(errors.Is(err, describe.ErrInference)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("expected 150528 values, got 10")))
	})
})

var _ = Describe("NewLanguageModel", func() {
	var opts LanguageModelOptions

	BeforeEach(func() {
		opts = LanguageModelOptions{
			ModelPath:         "gpt2.onnx",
			InputIDsName:      "input_ids",
			AttentionMaskName: "attention_mask",
			PositionIDsName:   "position_ids",
			LogitsName:        "logits",
			VocabSize:         50257,
		}
	})

	It("requires tensor names", func() {
		opts.LogitsName = ""
		_, err := NewLanguageModel(opts)
		Expect(err).To(HaveOccurred())
	})

	It("requires a vocabulary size", func() {
		opts.VocabSize = 0
		_, err := NewLanguageModel(opts)
		Expect(err).To(MatchError(ContainSubstring("invalid vocab size")))
	})
})

var _ = Describe("positionIDs", func() {
	It("counts from zero in every row", func() {
		Expect(positionIDs(2, 3)).To(Equal([]int64{0, 1, 2, 0, 1, 2}))
	})
})

var _ = Describe("lastPositionLogits", func() {
	It("picks the final position of each row", func() {
		// batch 2, two positions, vocab 3; each value encodes row, position and token.
		data := []float32{
			0, 1, 2, 10, 11, 12,
			100, 101, 102, 110, 111, 112,
		}
		rows := lastPositionLogits(data, 2, 2, 3)
		Expect(rows).To(Equal([][]float32{{10, 11, 12}, {110, 111, 112}}))
	})

	It("copies the rows out of the buffer", func() {
		data := []float32{1, 2, 3, 4}
		rows := lastPositionLogits(data, 1, 2, 2)
		data[2] = 99
		Expect(rows).To(Equal([][]float32{{3, 4}}))
	})
})
