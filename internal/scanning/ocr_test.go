package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("OCRSpace", func() {
	var (
		server *ghttp.Server
		ocr    *OCRSpace
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ocr, err = NewOCRSpace(OCRConfig{
			Endpoint: server.URL() + "/parse/image",
			APIKey:   "test-key",
			Language: "aze",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = ocr.ExtractText(context.Background(), []byte("png-bytes"), "image/png")
	})

	When("the service returns parsed results", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/parse/image"),
				ghttp.VerifyHeaderKV("apikey", "test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(r.ParseMultipartForm(1 << 20)).To(Succeed())
					Expect(r.FormValue("language")).To(Equal("aze"))
					f, _, ferr := r.FormFile("file")
					Expect(ferr).NotTo(HaveOccurred())
					f.Close()
				},
				ghttp.RespondWith(http.StatusOK, `{"ParsedResults":[{"ParsedText":"Çörək 1.20\r\n"},{"ParsedText":"Cəmi 1.20"}],"IsErroredOnProcessing":false}`),
			))
		})

		It("joins the text of every page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Çörək 1.20\nCəmi 1.20"))
		})
	})

	When("ParsedResults is missing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"IsErroredOnProcessing":true,"ErrorMessage":["File failed validation"]}`))
		})

		It("returns ErrNoTextFound", func() {
			Expect(err).To(MatchError(ErrNoTextFound))
		})
	})

	When("every page is blank", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"ParsedResults":[{"ParsedText":"  "}]}`))
		})

		It("returns ErrNoTextFound", func() {
			Expect(err).To(MatchError(ErrNoTextFound))
		})
	})

	When("the service fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "busy"))
		})

		It("returns ErrOCRUnavailable with the status", func() {
			Expect(err).To(MatchError(ErrOCRUnavailable))
			Expect(err.Error()).To(ContainSubstring("503"))
			Expect(err).NotTo(MatchError(ErrNoTextFound))
		})
	})

	When("the service cannot be reached", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns ErrOCRUnavailable", func() {
			Expect(err).To(MatchError(ErrOCRUnavailable))
			Expect(text).To(BeEmpty())
		})
	})
})

var _ = Describe("NewOCRSpace", func() {
	It("requires an API key", func() {
		_, err := NewOCRSpace(OCRConfig{})
		Expect(err).To(HaveOccurred())
	})
})
