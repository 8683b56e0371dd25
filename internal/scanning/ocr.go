package scanning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultOCREndpoint = "https://api.ocr.space/parse/image"
	defaultOCRLanguage = "auto"
	defaultOCREngine   = 2
)

// OCRConfig controls the OCR.space client
type OCRConfig struct {
	Endpoint   string
	APIKey     string
	Language   string
	Engine     int
	HTTPClient *http.Client
}

// OCRSpace implements the OCR interface using the OCR.space parse API
type OCRSpace struct {
	endpoint string
	apiKey   string
	language string
	engine   int
	client   *http.Client
}

// NewOCRSpace creates a new OCRSpace client
func NewOCRSpace(cfg OCRConfig) (*OCRSpace, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ocr api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOCREndpoint
	}
	if cfg.Language == "" {
		cfg.Language = defaultOCRLanguage
	}
	if cfg.Engine <= 0 {
		cfg.Engine = defaultOCREngine
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &OCRSpace{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		engine:   cfg.Engine,
		client:   cfg.HTTPClient,
	}, nil
}

// ExtractText uploads the image and returns the text of every parsed page
func (o *OCRSpace) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	pngData, err := normalizeImage(data, contentType)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"language":  o.language,
		"OCREngine": strconv.Itoa(o.engine),
		"scale":     "true",
		"isTable":   "true",
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return "", fmt.Errorf("writing form field %s: %w", name, err)
		}
	}
	part, err := form.CreateFormFile("file", "receipt.png")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(pngData); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("apikey", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrOCRUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrOCRUnavailable, resp.StatusCode, string(respBody))
	}

	return parseOCRResponse(respBody)
}

// parseOCRResponse reads {"ParsedResults":[{"ParsedText": "..."}]}
func parseOCRResponse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: OCR response is not JSON", ErrNoTextFound)
	}

	results := gjson.GetBytes(body, "ParsedResults")
	if !results.Exists() || len(results.Array()) == 0 {
		if msg := gjson.GetBytes(body, "ErrorMessage").String(); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrNoTextFound, msg)
		}
		return "", ErrNoTextFound
	}

	var pages []string
	for _, text := range gjson.GetBytes(body, "ParsedResults.#.ParsedText").Array() {
		if t := strings.TrimSpace(text.String()); t != "" {
			pages = append(pages, t)
		}
	}
	if len(pages) == 0 {
		return "", ErrNoTextFound
	}
	return strings.Join(pages, "\n"), nil
}
