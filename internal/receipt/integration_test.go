package receipt_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-insights/internal/advisor"
	"github.com/zombor/receipt-insights/internal/dataset"
	"github.com/zombor/receipt-insights/internal/fiscal"
	"github.com/zombor/receipt-insights/internal/insights"
	"github.com/zombor/receipt-insights/internal/receipt"
	"github.com/zombor/receipt-insights/internal/scanning"
)

var pngImage = append([]byte("\x89PNG\r\n\x1a\n"), []byte("\x00\x00\x00\rIHDR integration")...)

func ocrResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"ParsedResults":         []map[string]string{{"ParsedText": text}},
		"IsErroredOnProcessing": false,
	})
	return string(body)
}

var _ = Describe("Integration", func() {
	var (
		ocrServer    *ghttp.Server
		fiscalServer *ghttp.Server
		apiServer    *httptest.Server
		store        *dataset.BoltStore
	)

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()
		ocrServer = ghttp.NewServer()
		fiscalServer = ghttp.NewServer()

		var err error
		store, err = dataset.NewBoltStore(filepath.Join(tempDir, "insights.db"))
		Expect(err).NotTo(HaveOccurred())

		files, err := receipt.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		ocr, err := scanning.NewOCRSpace(scanning.OCRConfig{Endpoint: ocrServer.URL() + "/parse/image", APIKey: "test-key"})
		Expect(err).NotTo(HaveOccurred())
		pipeline := scanning.NewPipeline(ocr, scanning.NewExtractor(nil))

		resolver := fiscal.NewResolver(fiscal.Config{
			DocumentURL: fiscalServer.URL() + "/documents/{id}",
			Timeout:     2 * time.Second,
		}, files, pipeline)

		engine := insights.NewEngine(nil)
		service := receipt.NewService(receipt.Dependencies{
			Store:    store,
			KV:       store,
			Scanner:  pipeline,
			Resolver: resolver,
			Storage:  files,
			Insights: engine,
			Advisor:  advisor.New(nil, store, engine),
		})
		apiServer = httptest.NewServer(receipt.NewServer(service, receipt.BasicAuth{}).Handler())
	})

	AfterEach(func() {
		apiServer.Close()
		ocrServer.Close()
		fiscalServer.Close()
		Expect(store.Close()).To(Succeed())
	})

	upload := func(filename string, data []byte) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		resp, err := http.Post(apiServer.URL+"/api/receipts", w.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	scanQR := func(payload string) *http.Response {
		resp, err := http.Post(apiServer.URL+"/api/receipts/qr", "application/json", strings.NewReader(fmt.Sprintf(`{"payload":%q}`, payload)))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	get := func(path string, v any) {
		resp, err := http.Get(apiServer.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	It("scans a photo and a fiscal QR code into insights", func() {
		By("uploading a photo")
		ocrServer.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/parse/image"),
			ghttp.VerifyHeaderKV("apikey", "test-key"),
			ghttp.RespondWith(http.StatusOK, ocrResponse("Bravo Market\nÇörək 1.20\nSüd 2.10\nCəmi 3.30")),
		))
		resp := upload("receipt.png", pngImage)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var photo receipt.SaveResult
		Expect(json.NewDecoder(resp.Body).Decode(&photo)).To(Succeed())
		Expect(photo.Entry.StoreName).To(Equal("Bravo Market"))
		Expect(photo.Entry.TotalAmount).To(Equal(3.30))
		Expect(photo.Entry.Items).To(HaveLen(2))

		By("scanning a fiscal QR code")
		fiscalServer.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/documents/7Lv1Lwa4Gk2d"),
				ghttp.RespondWith(http.StatusOK, pngImage, http.Header{"Content-Type": []string{"image/png"}}),
			),
		)
		ocrServer.AppendHandlers(ghttp.RespondWith(http.StatusOK, ocrResponse("Araz Supermarket\nPendir 6.00\nYekun 6.00")))

		resp = scanQR(fiscal.DefaultPrefix + "7Lv1Lwa4Gk2d")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var qr receipt.SaveResult
		Expect(json.NewDecoder(resp.Body).Decode(&qr)).To(Succeed())
		Expect(qr.Entry.FiscalID).To(Equal("7Lv1Lwa4Gk2d"))
		Expect(qr.Entry.ImageURL).To(Equal("fiscal_7Lv1Lwa4Gk2d.png"))

		By("scanning the same QR code again")
		fiscalServer.AppendHandlers(ghttp.RespondWith(http.StatusOK, pngImage, http.Header{"Content-Type": []string{"image/png"}}))
		ocrServer.AppendHandlers(ghttp.RespondWith(http.StatusOK, ocrResponse("Araz Supermarket\nPendir 6.00\nYekun 6.00")))

		resp = scanQR(fiscal.DefaultPrefix + "7Lv1Lwa4Gk2d")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var again receipt.SaveResult
		Expect(json.NewDecoder(resp.Body).Decode(&again)).To(Succeed())
		Expect(again.Status).To(Equal(receipt.StatusDuplicate))

		By("listing entries newest first")
		var entries []dataset.Entry
		get("/api/entries", &entries)
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Source).To(Equal(dataset.SourceQR))
		Expect(entries[1].Source).To(Equal(dataset.SourcePhoto))

		By("computing insights")
		var result insights.Result
		get("/api/insights", &result)
		Expect(result.MonthlySpend).To(Equal(9.30))
		Expect(result.TopProducts).To(HaveLen(3))

		By("generating and reading the summary")
		resp, err := http.Post(apiServer.URL+"/api/summary", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var summary advisor.Summary
		get("/api/summary", &summary)
		Expect(summary.Source).To(Equal(advisor.SourceRules))
		Expect(summary.Headline).To(ContainSubstring("9.30"))
	})

	It("rejects a foreign QR code without calling the fiscal service", func() {
		resp := scanQR("https://example.com/receipt?doc=1")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(fiscalServer.ReceivedRequests()).To(BeEmpty())

		var entries []dataset.Entry
		get("/api/entries", &entries)
		Expect(entries).To(BeEmpty())
	})
})
