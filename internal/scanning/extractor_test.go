package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Extractor", func() {
	var (
		generator *mockGenerator
		extractor *Extractor
		text      string
		data      *ReceiptData
	)

	BeforeEach(func() {
		generator = &mockGenerator{}
		extractor = NewExtractor(generator)
		text = "Araz Market\nObyektin adı: Araz 28 May\nÇörək 1.20\nSüd 2.10\nCəmi 3.30\nFiskal ID: 7KQ2LMX"
	})

	JustBeforeEach(func() {
		data = extractor.Extract(context.Background(), text)
	})

	When("the generator returns usable JSON", func() {
		BeforeEach(func() {
			generator.response = "```json\n{\"storeName\": \"Araz Supermarket\", \"items\": [{\"name\": \"Çörək\", \"price\": 1.2}, {\"name\": \"Süd\", \"price\": \"2,10\"}], \"totalAmount\": 3.3}\n```"
		})

		It("uses the AI result", func() {
			Expect(data.Source).To(Equal(SourceAI))
			Expect(data.Items).To(HaveLen(2))
			Expect(data.Items[1].Price).To(Equal(2.10))
			Expect(data.Total).To(Equal(3.30))
		})

		It("prefers the AI store name", func() {
			Expect(data.StoreName).To(Equal("Araz Supermarket"))
		})

		It("still extracts the fiscal id from the text", func() {
			Expect(data.FiscalID).To(Equal("7KQ2LMX"))
		})

		It("sends the OCR text in the prompt", func() {
			Expect(generator.prompts).To(HaveLen(1))
			Expect(generator.prompts[0]).To(ContainSubstring("Çörək 1.20"))
		})
	})

	When("the AI result has items but no total", func() {
		BeforeEach(func() {
			generator.response = `{"storeName": null, "items": [{"name": "Çörək", "price": 1.20}, {"name": "Süd", "price": 2.15}]}`
		})

		It("derives the total from the items", func() {
			Expect(data.Source).To(Equal(SourceAI))
			Expect(data.Total).To(Equal(3.35))
		})

		It("falls back to the labelled store name", func() {
			Expect(data.StoreName).To(Equal("Araz 28 May"))
		})
	})

	When("the AI result has no items", func() {
		BeforeEach(func() {
			generator.response = `{"storeName": "X", "items": [], "totalAmount": 5}`
		})

		It("falls back to the rule-based parser", func() {
			Expect(data.Source).To(Equal(SourceRules))
			Expect(data.Items).To(HaveLen(2))
			Expect(data.Total).To(Equal(3.30))
			Expect(data.StoreName).To(Equal("Araz 28 May"))
		})
	})

	When("the generator returns prose", func() {
		BeforeEach(func() {
			generator.response = "Sorry, I cannot read this receipt."
		})

		It("falls back to the rule-based parser", func() {
			Expect(data.Source).To(Equal(SourceRules))
		})
	})

	When("the generator fails", func() {
		BeforeEach(func() {
			generator.err = errors.New("network down")
		})

		It("falls back to the rule-based parser", func() {
			Expect(data.Source).To(Equal(SourceRules))
			Expect(data.Total).To(Equal(3.30))
		})
	})

	When("no generator is configured", func() {
		BeforeEach(func() {
			extractor = NewExtractor(nil)
			text = "Bravo\nÇörək 1.20"
		})

		It("uses the first line as the store name", func() {
			Expect(data.StoreName).To(Equal("Bravo"))
			Expect(data.Total).To(Equal(1.20))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("does not call the generator", func() {
			Expect(generator.prompts).To(BeEmpty())
		})

		It("returns an empty item list", func() {
			Expect(data.Items).NotTo(BeNil())
			Expect(data.Items).To(BeEmpty())
			Expect(data.StoreName).To(BeEmpty())
		})
	})
})

var _ = Describe("parseStructuredJSON", func() {
	It("skips items with a non-numeric price", func() {
		data, err := parseStructuredJSON(`{"items": [{"name": "A1", "price": "abc"}, {"name": "B2", "price": 2}], "totalAmount": 2}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.Items).To(HaveLen(1))
		Expect(data.Items[0].Name).To(Equal("B2"))
	})

	It("rejects a zero total", func() {
		_, err := parseStructuredJSON(`{"items": [{"name": "Free", "price": 0}], "totalAmount": 0}`)
		Expect(err).To(MatchError(ErrMalformedAIResponse))
	})

	It("rejects invalid JSON", func() {
		_, err := parseStructuredJSON(`{"items": [`)
		Expect(err).To(MatchError(ErrMalformedAIResponse))
	})
})
