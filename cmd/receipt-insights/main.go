package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-insights/internal/advisor"
	"github.com/zombor/receipt-insights/internal/dataset"
	"github.com/zombor/receipt-insights/internal/fiscal"
	"github.com/zombor/receipt-insights/internal/insights"
	"github.com/zombor/receipt-insights/internal/receipt"
	"github.com/zombor/receipt-insights/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// datasetBackend is what the service needs from a dataset implementation
type datasetBackend interface {
	dataset.Store
	dataset.KV
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-insights")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		backend        = fs.StringLong("dataset", "bolt", "Dataset backend: 'bolt' or 'file'")
		dbPath         = fs.StringLong("db", "receipt-insights.db", "Bolt database file path")
		datasetFile    = fs.StringLong("dataset-file", "./data/dataset.json", "JSON dataset path for the file backend")
		storagePath    = fs.StringLong("storage", "./receipts", "Storage directory for photos and fiscal documents")
		ocrEndpoint    = fs.StringLong("ocr-endpoint", "https://api.ocr.space/parse/image", "OCR.space parse endpoint")
		ocrKey         = fs.StringLong("ocr-key", "", "OCR.space API key (or set OCR_SPACE_API_KEY env var)")
		ocrLanguage    = fs.StringLong("ocr-language", "auto", "OCR language")
		generatorType  = fs.StringLong("generator", "gemini", "Text generator: 'gemini', 'ollama' or 'none'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		fiscalPrefix   = fs.StringLong("fiscal-prefix", fiscal.DefaultPrefix, "Accepted fiscal QR code prefix")
		fiscalURL      = fs.StringLong("fiscal-document-url", fiscal.DefaultDocumentURL, "Fiscal document URL, {id} is replaced by the document id")
		fiscalTimeout  = fs.DurationLong("fiscal-timeout", fiscal.DefaultTimeout, "Fiscal document fetch timeout")
		promotionsPath = fs.StringLong("promotions", "", "Promotions catalog YAML file (defaults to the built-in catalog)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_INSIGHTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize dataset
	slog.Info("Initializing dataset...", "backend", *backend)
	var data datasetBackend
	switch *backend {
	case "bolt":
		db, err := dataset.NewBoltStore(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		data = db
	case "file":
		fileStore, err := dataset.NewFileStore(*datasetFile)
		if err != nil {
			slog.Error("Failed to initialize dataset file", "error", err)
			os.Exit(1)
		}
		data = fileStore
	default:
		slog.Error("Invalid dataset backend", "backend", *backend, "valid", "bolt or file")
		os.Exit(1)
	}

	// Initialize generator; receipts are still parsed by rules without one
	var generator scanning.Generator
	switch *generatorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini generator...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		generator = gemini
	case "ollama":
		slog.Info("Initializing Ollama generator...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		generator = ollama
	case "none":
		slog.Info("No text generator configured, using rule-based parsing and summaries")
	default:
		slog.Error("Invalid generator type", "type", *generatorType, "valid", "gemini, ollama or none")
		os.Exit(1)
	}
	if generator != nil {
		defer generator.Close()
	}

	// Initialize OCR
	apiKey := *ocrKey
	if apiKey == "" {
		apiKey = os.Getenv("OCR_SPACE_API_KEY")
	}
	ocr, err := scanning.NewOCRSpace(scanning.OCRConfig{
		Endpoint: *ocrEndpoint,
		APIKey:   apiKey,
		Language: *ocrLanguage,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR. Set --ocr-key flag or OCR_SPACE_API_KEY environment variable", "error", err)
		os.Exit(1)
	}
	pipeline := scanning.NewPipeline(ocr, scanning.NewExtractor(generator))

	// Initialize storage
	slog.Info("Initializing storage...")
	files, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	promotions, err := insights.LoadPromotionsFile(*promotionsPath)
	if err != nil {
		slog.Error("Failed to load promotions", "error", err)
		os.Exit(1)
	}
	engine := insights.NewEngine(promotions)

	resolver := fiscal.NewResolver(fiscal.Config{
		Prefix:      *fiscalPrefix,
		DocumentURL: *fiscalURL,
		Timeout:     *fiscalTimeout,
	}, files, pipeline)

	var summaries advisor.Generator
	if generator != nil {
		summaries = generator
	}

	// Initialize service
	receiptService := receipt.NewService(receipt.Dependencies{
		Store:    data,
		KV:       data,
		Scanner:  pipeline,
		Resolver: resolver,
		Storage:  files,
		Insights: engine,
		Advisor:  advisor.New(summaries, data, engine),
	})

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}
