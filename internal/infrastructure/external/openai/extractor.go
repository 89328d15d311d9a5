// Package openai extracts invoice and contract drafts from document images
// with the OpenAI vision models.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
)

// Config holds the OpenAI connection settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32 // overrides the prompt temperature when > 0
	MaxTokens   int     // overrides the prompt max_tokens when > 0
	ImageDetail string  // low, high or auto
}

// Extractor implements port.DocumentExtractor using the chat completions API
type Extractor struct {
	client  *openai.Client
	cfg     Config
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewExtractor creates a new OpenAI extractor
func NewExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.ImageDetail == "" {
		cfg.ImageDetail = string(openai.ImageURLDetailHigh)
	}
	return &Extractor{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		prompts: prompts,
		logger:  logger,
	}
}

// Model returns the configured model name
func (e *Extractor) Model() string {
	return e.cfg.Model
}

// ExtractInvoice reads an invoice image into a draft
func (e *Extractor) ExtractInvoice(ctx context.Context, doc *port.Document) (*port.InvoiceExtraction, error) {
	e.logger.Info("Extracting invoice with Vision API",
		zap.String("file_name", doc.FileName),
		zap.String("mime_type", doc.MIMEType),
		zap.Bool("converted", doc.Converted))

	content, usage, err := e.complete(ctx, e.prompts.InvoiceExtraction, doc)
	out := &port.InvoiceExtraction{Usage: usage}
	if err != nil {
		return out, err
	}

	var payload invoicePayload
	if err := decodeContent(content, &payload); err != nil {
		e.logger.Error("Failed to parse Vision API response",
			zap.Error(err),
			zap.String("content", content))
		return out, apperr.Wrap(apperr.KindExtractionFailure, err, "model returned an unreadable invoice")
	}

	out.Draft = payload.toDraft()
	out.Notes = payload.Reasoning

	e.logger.Info("Invoice extracted",
		zap.String("invoice_number", out.Draft.InvoiceNumber),
		zap.Int("line_items", len(out.Draft.LineItems)),
		zap.Float64("confidence", out.Draft.Confidence),
		zap.Int("tokens", usage.TokensUsed))

	return out, nil
}

// ExtractContractVendor reads a contract image into vendor details and terms
func (e *Extractor) ExtractContractVendor(ctx context.Context, doc *port.Document) (*port.ContractExtraction, error) {
	e.logger.Info("Extracting contract with Vision API",
		zap.String("file_name", doc.FileName),
		zap.String("mime_type", doc.MIMEType))

	content, usage, err := e.complete(ctx, e.prompts.ContractExtraction, doc)
	out := &port.ContractExtraction{Usage: usage}
	if err != nil {
		return out, err
	}

	var payload contractPayload
	if err := decodeContent(content, &payload); err != nil {
		e.logger.Error("Failed to parse Vision API response",
			zap.Error(err),
			zap.String("content", content))
		return out, apperr.Wrap(apperr.KindExtractionFailure, err, "model returned an unreadable contract")
	}

	out.Result = payload.toExtraction()

	e.logger.Info("Contract extracted",
		zap.String("vendor", out.Result.Vendor.Name),
		zap.Int("pricing_terms", len(out.Result.Contract.Terms.Pricing)),
		zap.Float64("confidence", out.Result.Confidence),
		zap.Int("tokens", usage.TokensUsed))

	return out, nil
}

// complete sends one vision request and returns the reply text. Usage is
// returned whenever the API answered.
func (e *Extractor) complete(ctx context.Context, spec PromptSpec, doc *port.Document) (string, port.ModelUsage, error) {
	usage := port.ModelUsage{Model: e.cfg.Model}

	prompt, err := renderTemplate(spec.UserTemplate, PromptData{FileName: doc.FileName, Converted: doc.Converted})
	if err != nil {
		return "", usage, apperr.Wrap(apperr.KindInternal, err, "failed to render prompt")
	}

	temperature := spec.Temperature
	if e.cfg.Temperature > 0 {
		temperature = e.cfg.Temperature
	}
	maxTokens := spec.MaxTokens
	if e.cfg.MaxTokens > 0 {
		maxTokens = e.cfg.MaxTokens
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: spec.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    doc.ImageURL,
							Detail: openai.ImageURLDetail(e.cfg.ImageDetail),
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return "", usage, classify(ctx, err)
	}

	if resp.Model != "" {
		usage.Model = resp.Model
	}
	usage.TokensUsed = resp.Usage.TotalTokens

	if len(resp.Choices) == 0 {
		return "", usage, apperr.New(apperr.KindExtractionFailure, "no response from Vision API")
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		e.logger.Warn("Vision API response truncated", zap.Int("max_tokens", maxTokens))
	}

	return resp.Choices[0].Message.Content, usage, nil
}

// classify maps a failed API call onto the pipeline error kinds
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindExtractionTimeout, err, "extraction timed out")
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindCanceled, err, "request canceled during extraction")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindExtractionFailure, err, fmt.Sprintf("Vision API returned status %d", apiErr.HTTPStatusCode))
	}
	return apperr.Wrap(apperr.KindExtractionFailure, err, "Vision API call failed")
}
