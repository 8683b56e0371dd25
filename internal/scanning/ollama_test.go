package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		generator *Ollama
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		generator, err = NewOllama(server.URL()+"/", "llama3.1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = generator.Generate(context.Background(), "summarize")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, rerr := io.ReadAll(r.Body)
					Expect(rerr).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llama3.1"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages[len(req.Messages)-1].Content).To(Equal("summarize"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "  - buy less  "},
					Done:    true,
				}),
			))
		})

		It("returns the trimmed message", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("- buy less"))
		})
	})

	When("the model answers with nothing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{Done: true}))
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not found"))
		})

		It("returns an error containing the body", func() {
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})
})
