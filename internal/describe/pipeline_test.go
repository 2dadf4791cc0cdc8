package describe_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Brownie44l1/describer/internal/describe"
	"github.com/Brownie44l1/describer/internal/imageproc"
)

func pngImage(width, height int) describe.UploadedImage {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return describe.UploadedImage{Data: buf.Bytes(), Format: "png", Filename: "photo.png"}
}

var _ = Describe("Pipeline", func() {
	ctx := context.Background()

	var (
		scorer    *fakeScorer
		generator *fakeGenerator
		pipeline  *describe.Pipeline
	)

	BeforeEach(func() {
		scorer = &fakeScorer{scores: []float32{0.1, 0.2, 3.5, 0.4}}
		generator = &fakeGenerator{}
		pipeline = describe.NewPipeline(imageproc.New(), describe.NewClassifier(scorer), generator, nil)
	})

	It("classifies and describes an uploaded image", func() {
		req := describe.Request{Style: describe.StyleInformal, Length: 300, Paragraphs: 2}
		result, err := pipeline.Run(ctx, pngImage(40, 30), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Class).To(Equal(describe.ClassLabel(2)))
		Expect(result.Paragraphs).To(HaveLen(2))
		Expect(generator.prompts).To(HaveEach(Equal(describe.BuildPrompt(2, req))))
		Expect(generator.maxLengths).To(HaveEach(Equal(150)))
	})

	DescribeTable("joins exactly the requested number of paragraphs with one blank line",
		func(paragraphs int) {
			generator.text = func(call int) string {
				return "  paragraph " + strings.Repeat("x", call) + "\n"
			}
			req := describe.Request{Style: describe.StyleFormal, Length: 500, Paragraphs: paragraphs}
			_, description, err := pipeline.Describe(ctx, req, 7)
			Expect(err).NotTo(HaveOccurred())

			Expect(description).To(Equal(strings.TrimSpace(description)))
			segments := strings.Split(description, "\n\n")
			Expect(segments).To(HaveLen(paragraphs))
			for _, segment := range segments {
				Expect(strings.TrimSpace(segment)).NotTo(BeEmpty())
				Expect(segment).To(Equal(strings.TrimSpace(segment)))
			}
			Expect(generator.calls).To(Equal(paragraphs))
		},
		Entry("one", 1),
		Entry("two", 2),
		Entry("three", 3),
		Entry("four", 4),
		Entry("five", 5),
	)

	It("keeps blank lines inside a paragraph from splitting it", func() {
		generator.text = func(int) string { return "first line\n\n\nsecond line" }
		req := describe.Request{Style: describe.StyleFormal, Length: 200, Paragraphs: 2}
		paragraphs, description, err := pipeline.Describe(ctx, req, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(paragraphs).To(Equal([]string{"first line\nsecond line", "first line\nsecond line"}))
		Expect(strings.Split(description, "\n\n")).To(HaveLen(2))
	})

	It("discards earlier paragraphs when a later one fails", func() {
		generator.failOnCall = 3
		req := describe.Request{Style: describe.StyleFormal, Length: 500, Paragraphs: 4}
		paragraphs, description, err := pipeline.Describe(ctx, req, 7)
		Expect(errors.Is(err, describe.ErrGeneration)).To(BeTrue())
		Expect(paragraphs).To(BeNil())
		Expect(description).To(BeEmpty())
		Expect(generator.calls).To(Equal(3))
	})

	It("refuses a zero paragraph count", func() {
		_, _, err := pipeline.Describe(ctx, describe.Request{Style: describe.StyleFormal, Length: 100}, 1)
		Expect(errors.Is(err, describe.ErrInvalidRequest)).To(BeTrue())
		Expect(generator.calls).To(BeZero())
	})

	It("stops at a non-image upload before classifying or generating", func() {
		upload := describe.UploadedImage{Data: []byte("plain text, not pixels"), Format: "png", Filename: "notes.png"}
		_, err := pipeline.Run(ctx, upload, describe.DefaultRequest())
		Expect(errors.Is(err, describe.ErrDecode)).To(BeTrue())
		Expect(scorer.calls).To(BeZero())
		Expect(generator.calls).To(BeZero())
	})

	It("validates the request before touching the image", func() {
		_, err := pipeline.Run(ctx, pngImage(10, 10), describe.Request{Style: describe.StyleFormal, Length: 50, Paragraphs: 3})
		Expect(errors.Is(err, describe.ErrInvalidRequest)).To(BeTrue())
		Expect(scorer.calls).To(BeZero())
	})

	It("surfaces classifier failures as inference errors", func() {
		scorer.err = errors.New("bad input")
		_, err := pipeline.Run(ctx, pngImage(10, 10), describe.DefaultRequest())
		Expect(errors.Is(err, describe.ErrInference)).To(BeTrue())
		Expect(generator.calls).To(BeZero())
	})
})
