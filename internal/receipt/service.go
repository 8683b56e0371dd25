package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zombor/receipt-insights/internal/advisor"
	"github.com/zombor/receipt-insights/internal/category"
	"github.com/zombor/receipt-insights/internal/dataset"
	"github.com/zombor/receipt-insights/internal/insights"
	"github.com/zombor/receipt-insights/internal/scanning"
)

// ErrInvalidProfile is returned when a profile fails validation
var ErrInvalidProfile = errors.New("invalid profile")

// IDGenerator generates unique IDs for entries
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Scanner recognises a receipt photo
type Scanner interface {
	ScanImage(ctx context.Context, data []byte, contentType string) (*scanning.Receipt, error)
}

// QRResolver turns a fiscal QR payload into a receipt
type QRResolver interface {
	Resolve(ctx context.Context, payload string) (*scanning.Receipt, error)
}

// InsightsBuilder computes analytics over the dataset
type InsightsBuilder interface {
	Build(entries []dataset.Entry) insights.Result
}

// Summarizer produces and caches advisor summaries
type Summarizer interface {
	Generate(ctx context.Context, entries []dataset.Entry) (*advisor.Summary, error)
	Latest() (*advisor.Summary, error)
	Clear() error
}

// Dependencies are the collaborators of a Service
type Dependencies struct {
	Store    dataset.Store
	KV       dataset.KV
	Scanner  Scanner
	Resolver QRResolver
	Storage  Storage
	Insights InsightsBuilder
	Advisor  Summarizer
}

// Service runs the scan-to-save workflow and serves the derived views
type Service struct {
	deps        Dependencies
	idGenerator IDGenerator
	timeSource  TimeSource

	// mu serializes the duplicate check with the append
	mu sync.Mutex
}

// NewService creates a new Service with UUID ids and the wall clock
func NewService(deps Dependencies) *Service {
	return NewServiceWithDeps(deps, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(deps Dependencies, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		deps:        deps,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename shortens phone-generated names to a safe base and extension
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ProcessPhoto stores a receipt photo, scans it and saves the entry
func (s *Service) ProcessPhoto(ctx context.Context, filename string, data []byte, contentType string) (*SaveResult, error) {
	id := s.idGenerator.Generate()

	savedPath, err := s.deps.Storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	scanned, err := s.deps.Scanner.ScanImage(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.discard(savedPath)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	scanned.ImageURL = savedPath

	result, err := s.SaveEntry(ctx, s.entryFrom(id, scanned, dataset.SourcePhoto))
	if err != nil || result.Status == StatusDuplicate {
		s.discard(savedPath)
	}
	return result, err
}

// ProcessQR resolves a fiscal QR code and saves the entry
func (s *Service) ProcessQR(ctx context.Context, payload string) (*SaveResult, error) {
	scanned, err := s.deps.Resolver.Resolve(ctx, payload)
	if err != nil {
		slog.Error("Failed to resolve QR code", "error", err)
		return nil, fmt.Errorf("resolving QR code: %w", err)
	}

	return s.SaveEntry(ctx, s.entryFrom(s.idGenerator.Generate(), scanned, dataset.SourceQR))
}

func (s *Service) entryFrom(id string, r *scanning.Receipt, source string) dataset.Entry {
	items := make([]dataset.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, dataset.Item{Name: it.Name, Price: it.Price, Category: it.Category})
	}
	return dataset.Entry{
		ID:          id,
		StoreName:   r.StoreName,
		TotalAmount: r.TotalAmount,
		Items:       items,
		CreatedAt:   s.timeSource.Now(),
		Source:      source,
		RawText:     r.Text,
		FiscalID:    r.FiscalID,
		ImageURL:    r.ImageURL,
	}
}

func (s *Service) discard(path string) {
	if err := s.deps.Storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// DedupKey names the purchase an entry records. A fiscal id identifies a
// receipt exactly; otherwise the store, the total and the day are hashed.
func DedupKey(e dataset.Entry) string {
	if id := strings.TrimSpace(e.FiscalID); id != "" {
		return "fiscal:" + id
	}
	raw := fmt.Sprintf("%s|%.2f|%s",
		category.Fold(e.StoreName),
		e.TotalAmount,
		e.CreatedAt.UTC().Format("2006-01-02"),
	)
	sum := sha256.Sum256([]byte(raw))
	return "hash:" + hex.EncodeToString(sum[:])
}

// SaveEntry appends entry unless the same purchase is already recorded. A
// cancelled context leaves the dataset untouched.
func (s *Service) SaveEntry(ctx context.Context, entry dataset.Entry) (*SaveResult, error) {
	if entry.ID == "" {
		entry.ID = s.idGenerator.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.timeSource.Now()
	}
	if entry.Items == nil {
		entry.Items = []dataset.Item{}
	}
	key := DedupKey(entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.deps.Store.All()
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	for _, e := range existing {
		if DedupKey(e) == key {
			slog.Info("Duplicate receipt", "key", key, "existing_id", e.ID)
			return &SaveResult{
				Status:  StatusDuplicate,
				Message: "This receipt is already recorded.",
				Entry:   e,
			}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("saving entry: %w", err)
	}
	if err := s.deps.Store.Append(entry); err != nil {
		return nil, fmt.Errorf("saving entry: %w", err)
	}

	return &SaveResult{
		Status:  StatusStored,
		Message: "Receipt saved.",
		Entry:   entry,
	}, nil
}

// ListEntries returns every entry, newest first
func (s *Service) ListEntries() ([]dataset.Entry, error) {
	entries, err := s.deps.Store.All()
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// ClearEntries removes every entry and the cached summary
func (s *Service) ClearEntries() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Store.Clear(); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	if err := s.deps.Advisor.Clear(); err != nil {
		slog.Warn("Failed to clear summary", "error", err)
	}
	return nil
}

// GetFile returns a stored receipt image
func (s *Service) GetFile(name string) ([]byte, error) {
	data, err := s.deps.Storage.Get(name)
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return data, nil
}

// Insights computes analytics over the current dataset
func (s *Service) Insights() (insights.Result, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return insights.Result{}, err
	}
	return s.deps.Insights.Build(entries), nil
}

// GenerateSummary builds a fresh advisor summary and caches it
func (s *Service) GenerateSummary(ctx context.Context) (*advisor.Summary, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return nil, err
	}
	summary, err := s.deps.Advisor.Generate(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("generating summary: %w", err)
	}
	return summary, nil
}

// LatestSummary returns the cached summary, or nil when there is none
func (s *Service) LatestSummary() (*advisor.Summary, error) {
	summary, err := s.deps.Advisor.Latest()
	if err != nil {
		return nil, fmt.Errorf("getting summary: %w", err)
	}
	return summary, nil
}

// ClearSummary removes the cached summary
func (s *Service) ClearSummary() error {
	if err := s.deps.Advisor.Clear(); err != nil {
		return fmt.Errorf("clearing summary: %w", err)
	}
	return nil
}

// GetProfile returns the saved profile, or a blank one with defaults
func (s *Service) GetProfile() (*Profile, error) {
	profile := Profile{Currency: defaultCurrency}
	if _, err := s.deps.KV.Get(dataset.ProfileKey, &profile); err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile validates and overwrites the profile
func (s *Service) SaveProfile(profile Profile) (*Profile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Currency = strings.ToUpper(strings.TrimSpace(profile.Currency))
	if profile.Currency == "" {
		profile.Currency = defaultCurrency
	}
	if profile.MonthlyBudget < 0 {
		return nil, fmt.Errorf("%w: monthly budget cannot be negative", ErrInvalidProfile)
	}
	if len(profile.Currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a three-letter code", ErrInvalidProfile)
	}
	profile.UpdatedAt = s.timeSource.Now()

	if err := s.deps.KV.Put(dataset.ProfileKey, profile); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return &profile, nil
}
