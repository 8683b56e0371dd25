package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseText", func() {
	var (
		text   string
		result RuleResult
	)

	JustBeforeEach(func() {
		result = ParseText(text)
	})

	When("an item line is followed by a Cəmi line", func() {
		BeforeEach(func() {
			text = "Çörək 1.20\nCəmi 1.20"
		})

		It("extracts one item", func() {
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("Çörək"))
			Expect(result.Items[0].Price).To(Equal(1.20))
		})

		It("consumes the Cəmi line as the total", func() {
			Expect(result.HasTotalLine).To(BeTrue())
			Expect(result.Total).To(Equal(1.20))
		})

		It("categorizes the item", func() {
			Expect(result.Items[0].Category).To(Equal("Bakery"))
		})
	})

	When("the total line comes before the items", func() {
		BeforeEach(func() {
			text = "CƏMİ: 9,99\nSüd 2.10\nPendir 4.50"
		})

		It("uses the explicit total regardless of ordering", func() {
			Expect(result.Total).To(Equal(9.99))
			Expect(result.Items).To(HaveLen(2))
		})
	})

	When("there is no total line", func() {
		BeforeEach(func() {
			text = "Süd 2.10\nPendir 4,55\nAlma 1.05"
		})

		It("sums the item prices", func() {
			Expect(result.HasTotalLine).To(BeFalse())
			Expect(result.Total).To(BeNumerically("~", 7.70, 0.01))
		})

		It("accepts a comma decimal separator", func() {
			Expect(result.Items[1].Price).To(Equal(4.55))
		})
	})

	When("the receipt has boilerplate lines", func() {
		BeforeEach(func() {
			text = `Bravo Supermarket
Obyektin adı: Bravo Koroğlu
16.10.2026 12:45
Kassir: Əliyev Ə.
1
Süd 3.2% 2 x 1.05 2.10
ƏDV 18%: 0.32
Nağd: 5.00
Qalıq: 2.90
Fiskal ID: 5FXK2ABCD9
Yekun 2.10`
		})

		It("detects the store from the labelled line", func() {
			Expect(result.DetectedStore).To(Equal("Bravo Koroğlu"))
		})

		It("keeps only the real item", func() {
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("Süd 3.2%"))
			Expect(result.Items[0].Price).To(Equal(2.10))
		})

		It("records the VAT amount", func() {
			Expect(result.VATAmount).To(Equal(0.32))
		})

		It("reads the total", func() {
			Expect(result.Total).To(Equal(2.10))
		})
	})

	When("the labels are printed in upper case", func() {
		BeforeEach(func() {
			text = "BRAVO MMC\nOBYEKTİN ADI: BRAVO KOROĞLU\nFİSKAL İD: 5FXK2ABCD9\nÇÖRƏK 1.20\nCƏMİ 1.20"
		})

		It("detects the store from the labelled line", func() {
			Expect(result.DetectedStore).To(Equal("BRAVO KOROĞLU"))
		})

		It("does not read the fiscal id line as an item", func() {
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("ÇÖRƏK"))
			Expect(result.Total).To(Equal(1.20))
		})
	})

	When("a product name starts like a payment word", func() {
		BeforeEach(func() {
			text = "Kartof 1kg 1.50"
		})

		It("keeps the item", func() {
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("Kartof 1kg"))
		})
	})

	When("a line carries a date but no price", func() {
		BeforeEach(func() {
			text = "Tarix: 16.10.2026"
		})

		It("does not read the date as a price", func() {
			Expect(result.Items).To(BeEmpty())
			Expect(result.Total).To(BeZero())
		})
	})

	When("the name is a single character", func() {
		BeforeEach(func() {
			text = "A 1.00"
		})

		It("drops the line", func() {
			Expect(result.Items).To(BeEmpty())
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("returns an empty result", func() {
			Expect(result.Items).To(BeEmpty())
			Expect(result.Total).To(BeZero())
			Expect(result.DetectedStore).To(BeEmpty())
		})
	})
})

var _ = Describe("FiscalID", func() {
	DescribeTable("label spellings",
		func(text, expected string) {
			Expect(FiscalID(text)).To(Equal(expected))
		},
		Entry("fiscal id", "Fiscal ID: ABC123XYZ", "ABC123XYZ"),
		Entry("fiskal id", "fiskal id 7KQ2LM", "7KQ2LM"),
		Entry("fiskal kod", "FISKAL KOD: 99ZZ11", "99ZZ11"),
		Entry("upper case Azerbaijani", "FİSKAL İD: 5FXK2ABCD9", "5FXK2ABCD9"),
		Entry("dotless i", "fıskal ıd: 5fxk2abcd9", "5fxk2abcd9"),
		Entry("missing", "Cəmi 1.20", ""),
	)

	It("returns the first match", func() {
		Expect(FiscalID("Fiskal ID: FIRST1\nFiskal ID: SECOND2")).To(Equal("FIRST1"))
	})
})
