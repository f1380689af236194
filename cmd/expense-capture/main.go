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

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/casafin/expense-capture/internal/backend"
	"github.com/casafin/expense-capture/internal/capture"
	"github.com/casafin/expense-capture/internal/extraction"
	"github.com/casafin/expense-capture/internal/imaging"
	"github.com/casafin/expense-capture/internal/recurring"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Local overrides for development; the file is optional
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	fs := ff.NewFlagSet("expense-capture")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		backendURL    = fs.StringLong("backend-url", "http://localhost:8000", "Expense tracker backend base URL")
		backendToken  = fs.StringLong("backend-token", "", "Backend API access token (or set EXPENSE_CAPTURE_BACKEND_TOKEN)")
		extractorType = fs.StringLong("extractor", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		baseCurrency  = fs.StringLong("base-currency", "MXN", "Base currency code for amounts without one")
		storagePath   = fs.StringLong("storage", "./captures", "Local image copy directory")
		journalPath   = fs.StringLong("journal", "expense-capture.db", "Pending-attachment journal file path")
		maxDimension  = fs.IntLong("max-dimension", 1024, "Longest image edge after downsampling, in pixels")
		jpegQuality   = fs.IntLong("jpeg-quality", 85, "JPEG quality for normalized images")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		skipRecurring = fs.BoolLong("skip-recurring", "Skip the startup recurring-schedule passes")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *backendToken == "" {
		slog.Error("Backend token is required. Set --backend-token flag or EXPENSE_CAPTURE_BACKEND_TOKEN environment variable")
		os.Exit(1)
	}

	// Initialize backend client
	client := backend.NewClient(backend.ClientConfig{
		BaseURL:     *backendURL,
		AccessToken: *backendToken,
	})

	// Initialize extractor based on type
	var extractor extraction.Extractor
	var err error
	switch *extractorType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel, *baseCurrency)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel, *baseCurrency)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize local image storage
	slog.Info("Initializing storage...")
	store, err := imaging.NewLocalStore(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize pending-attachment journal
	journal, err := capture.NewBoltJournal(*journalPath)
	if err != nil {
		slog.Error("Failed to initialize journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	normalizer := imaging.NewNormalizer(imaging.Config{
		MaxWidth:  *maxDimension,
		MaxHeight: *maxDimension,
		Quality:   *jpegQuality,
		MaxSizeKB: imaging.DefaultConfig().MaxSizeKB,
	})
	committer := capture.NewCommitter(client, store, journal)
	service := capture.NewService(normalizer, extractor, store, committer, strings.ToUpper(*baseCurrency))

	// Initialize server
	basicAuth := capture.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := capture.NewServer(service, basicAuth)

	// Startup passes run in the background so a slow or unreachable backend
	// never delays the capture surface
	evaluator := recurring.NewEvaluator(client)
	if !*skipRecurring {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			evaluator.RunStartupPasses(ctx)
		}()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if retried := committer.RetryPending(ctx); retried > 0 {
			slog.Info("Retried pending attachments", "uploaded", retried)
		}
	}()

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
