// Command extract-check runs one document through normalization, extraction
// and (for invoices with terms) reconciliation, and prints the result as JSON.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/config"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/mock"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/openai"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/pdf"
	"github.com/garyjia/contract-reconciler/internal/normalize"
	"github.com/garyjia/contract-reconciler/internal/reconcile"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config.yaml")
	file := flag.String("file", "", "Invoice or contract image/PDF to extract")
	kind := flag.String("kind", "invoice", "Document kind: invoice or contract")
	termsFile := flag.String("terms", "", "JSON contract terms to reconcile an invoice against")
	useMock := flag.Bool("mock", false, "Use the canned mock extractor instead of OpenAI")
	timeout := flag.Duration("timeout", 60*time.Second, "Extraction timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: extract-check --file invoice.pdf [--kind invoice|contract] [--terms terms.json] [--mock]\n")
		os.Exit(2)
	}

	_ = gotenv.Load()
	if *useMock {
		_ = os.Setenv("AI_MOCK_MODE", "true")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, cfg, *file, *kind, *termsFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, file, kind, termsFile string, logger *zap.Logger) (interface{}, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	renderer := pdf.NewRenderer(pdf.Config{Format: cfg.PDF.Format, Quality: cfg.PDF.Quality}, logger)
	normalizer := normalize.New(normalize.Config{MaxDocumentBytes: cfg.AI.MaxDocumentBytes}, renderer, logger)
	doc, err := normalizer.Normalize(ctx, &normalize.DocumentRequest{
		ImageData: base64.StdEncoding.EncodeToString(data),
		FileName:  filepath.Base(file),
	})
	if err != nil {
		return nil, err
	}

	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "contract":
		ext, err := extractor.ExtractContractVendor(ctx, doc)
		if err != nil {
			return nil, err
		}
		logger.Info("Contract extracted", zap.Int("tokens", ext.Usage.TokensUsed))
		return ext.Result, nil

	case "invoice":
		ext, err := extractor.ExtractInvoice(ctx, doc)
		if err != nil {
			return nil, err
		}
		logger.Info("Invoice extracted", zap.Int("tokens", ext.Usage.TokensUsed))
		if termsFile == "" {
			return ext.Draft, nil
		}

		terms, err := loadTerms(termsFile)
		if err != nil {
			return nil, err
		}
		reconcileCfg, err := cfg.ReconcileConfig()
		if err != nil {
			return nil, err
		}
		matcher, err := reconcile.NewMatcher(cfg.Reconciliation.Matcher)
		if err != nil {
			return nil, err
		}
		engine, err := reconcile.NewEngine(reconcileCfg, matcher)
		if err != nil {
			return nil, err
		}
		return engine.Reconcile(ext.Draft, terms)

	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func newExtractor(cfg *config.Config, logger *zap.Logger) (port.DocumentExtractor, error) {
	if cfg.AI.MockMode {
		return mock.NewExtractor(0, logger), nil
	}
	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	return openai.NewExtractor(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		ImageDetail: cfg.OpenAI.ImageDetail,
	}, prompts, logger), nil
}

func loadTerms(path string) (*entity.ContractTerms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read terms: %w", err)
	}
	var terms entity.ContractTerms
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("failed to parse terms: %w", err)
	}
	return &terms, nil
}
