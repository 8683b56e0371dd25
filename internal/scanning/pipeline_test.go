package scanning

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pipeline", func() {
	var (
		ocr      *mockOCR
		pipeline *Pipeline
		receipt  *Receipt
		err      error
	)

	BeforeEach(func() {
		ocr = &mockOCR{text: "Bravo\nÇörək 1.20\nCəmi 1.20\nFiskal ID: ABCD1234"}
		pipeline = NewPipeline(ocr, NewExtractor(nil))
		pipeline.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	})

	JustBeforeEach(func() {
		receipt, err = pipeline.ScanImage(context.Background(), []byte("img"), "image/png")
	})

	When("OCR succeeds", func() {
		It("builds a receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.ID).NotTo(BeEmpty())
			Expect(receipt.TotalAmount).To(Equal(1.20))
			Expect(receipt.StoreName).To(Equal("Bravo"))
			Expect(receipt.FiscalID).To(Equal("ABCD1234"))
			Expect(receipt.Date).To(Equal(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
		})
	})

	When("the OCR text is long", func() {
		BeforeEach(func() {
			ocr.text = strings.Repeat("ə", 800)
		})

		It("keeps at most 500 characters", func() {
			Expect(utf8.RuneCountInString(receipt.Text)).To(Equal(500))
		})
	})

	When("OCR fails", func() {
		BeforeEach(func() {
			ocr.err = ErrNoTextFound
		})

		It("returns the wrapped error", func() {
			Expect(receipt).To(BeNil())
			Expect(errors.Is(err, ErrNoTextFound)).To(BeTrue())
		})
	})
})
