// Package fiscal resolves e-kassa receipt QR codes into scanned receipts.
//
// A QR code carries a monitoring URL whose doc parameter names the fiscal
// document. The document is downloaded from the fiscal authority, cached
// locally and run through the regular OCR pipeline.
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/receipt-insights/internal/scanning"
)

var (
	// ErrInvalidFormat is returned for QR payloads that are not fiscal receipt links
	ErrInvalidFormat = errors.New("not a fiscal receipt QR code")
	// ErrFetch is returned when the fiscal document cannot be downloaded
	ErrFetch = errors.New("fetching fiscal document")
	// ErrExtractionFailed is returned when the document yields no usable text
	ErrExtractionFailed = errors.New("no text could be extracted from the fiscal document")
)

const (
	DefaultPrefix      = "https://monitoring.e-kassa.gov.az/#/index?doc="
	DefaultDocumentURL = "https://monitoring.e-kassa.gov.az/pks-monitoring/2.0.0/documents/{id}"
	DefaultTimeout     = 15 * time.Second

	maxDocumentSize = 20 << 20
)

var documentID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Cache keeps a copy of downloaded documents
type Cache interface {
	Save(filename string, data []byte) (string, error)
}

// Scanner turns a document image into a receipt
type Scanner interface {
	ScanImage(ctx context.Context, data []byte, contentType string) (*scanning.Receipt, error)
}

// Config configures a Resolver. Zero values select the defaults.
type Config struct {
	Prefix      string
	DocumentURL string // {id} is replaced by the document id
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Resolver downloads and scans fiscal documents
type Resolver struct {
	prefix      string
	documentURL string
	client      *http.Client
	cache       Cache
	scanner     Scanner
}

// NewResolver creates a new Resolver
func NewResolver(cfg Config, cache Cache, scanner Scanner) *Resolver {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.DocumentURL == "" {
		cfg.DocumentURL = DefaultDocumentURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Resolver{
		prefix:      cfg.Prefix,
		documentURL: cfg.DocumentURL,
		client:      cfg.HTTPClient,
		cache:       cache,
		scanner:     scanner,
	}
}

// DocumentID validates a QR payload against prefix and returns its doc parameter
func DocumentID(payload, prefix string) (string, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, prefix) {
		return "", ErrInvalidFormat
	}

	u, err := url.Parse(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	// The monitoring site routes on the fragment: #/index?doc=<id>
	query := u.Query()
	if _, fragmentQuery, ok := strings.Cut(u.Fragment, "?"); ok {
		if values, err := url.ParseQuery(fragmentQuery); err == nil {
			for k, v := range values {
				query[k] = v
			}
		}
	}

	id := strings.TrimSpace(query.Get("doc"))
	if id == "" {
		return "", fmt.Errorf("%w: missing doc parameter", ErrInvalidFormat)
	}
	if !documentID.MatchString(id) {
		return "", fmt.Errorf("%w: malformed document id", ErrInvalidFormat)
	}
	return id, nil
}

// Resolve turns a QR payload into a scanned receipt. The payload is validated
// before any network access.
func (r *Resolver) Resolve(ctx context.Context, payload string) (*scanning.Receipt, error) {
	id, err := DocumentID(payload, r.prefix)
	if err != nil {
		return nil, err
	}

	data, contentType, err := r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	cachedPath, err := r.cache.Save("fiscal_"+id+extensionFor(contentType), data)
	if err != nil {
		slog.Warn("Failed to cache fiscal document", "document_id", id, "error", err)
		cachedPath = ""
	}

	receipt, err := r.scanner.ScanImage(ctx, data, contentType)
	if errors.Is(err, scanning.ErrNoTextFound) {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning fiscal document: %w", err)
	}
	if strings.TrimSpace(receipt.Text) == "" {
		return nil, ErrExtractionFailed
	}

	receipt.FiscalID = id
	receipt.ImageURL = cachedPath
	return receipt, nil
}

func (r *Resolver) fetch(ctx context.Context, id string) ([]byte, string, error) {
	endpoint := strings.ReplaceAll(r.documentURL, "{id}", url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: creating request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/pdf, image/*, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if isJSON(mediaType, body) {
		data, ok := unwrapJSON(body)
		if !ok {
			return nil, "", fmt.Errorf("%w: no document in JSON response", ErrExtractionFailed)
		}
		return data, http.DetectContentType(data), nil
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(body)
	}
	return body, mediaType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/heic", "image/heif":
		return ".heic"
	}
	return ".bin"
}
