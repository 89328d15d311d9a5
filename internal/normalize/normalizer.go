// Package normalize validates inbound analysis requests and turns them into
// a single canonical image source for the extraction adapter.
package normalize

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
)

// Document is the canonical output of normalization
type Document = port.Document

const mimePDF = "application/pdf"

var supportedImages = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var typeAliases = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"pdf":  mimePDF,
}

// Config bounds inline payloads
type Config struct {
	MaxDocumentBytes int64
}

// Normalizer validates and canonicalizes document requests
type Normalizer struct {
	cfg      Config
	renderer port.PDFRenderer
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a normalizer; renderer may be nil, which makes PDFs a
// conversion failure.
func New(cfg Config, renderer port.PDFRenderer, logger *zap.Logger) *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Normalizer{cfg: cfg, renderer: renderer, validate: v, logger: logger}
}

// NormalizeInvoice validates the document source and any contract terms
func (n *Normalizer) NormalizeInvoice(ctx context.Context, req *InvoiceRequest) (*NormalizedInvoice, error) {
	if req == nil {
		return nil, apperr.New(apperr.KindSchemaValidation, "request body is required")
	}
	var details []string
	if req.ContractTerms != nil {
		if err := req.ContractTerms.Validate(); err != nil {
			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				return nil, err
			}
			details = append(details, appErr.Details...)
		}
	}
	if err := n.check(&req.DocumentRequest); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			details = append(append([]string{}, appErr.Details...), details...)
		}
	}
	if len(details) > 0 {
		return nil, apperr.New(apperr.KindSchemaValidation, "invalid invoice analysis request").WithDetails(details...)
	}

	doc, err := n.Normalize(ctx, &req.DocumentRequest)
	if err != nil {
		return nil, err
	}
	return &NormalizedInvoice{Document: doc, Terms: req.ContractTerms, Vendor: req.VendorInfo}, nil
}

// Normalize validates req and returns its canonical image source
func (n *Normalizer) Normalize(ctx context.Context, req *DocumentRequest) (*Document, error) {
	if req == nil {
		return nil, apperr.New(apperr.KindSchemaValidation, "request body is required")
	}
	if err := n.check(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCanceled, err, "request canceled")
	}

	hint, err := parseTypeHint(req.ImageType)
	if err != nil {
		return nil, err
	}

	if req.ImageURL != "" {
		if strings.HasPrefix(strings.ToLower(req.ImageURL), "data:") {
			mimeType, data, err := parseDataURL(req.ImageURL)
			if err != nil {
				return nil, err
			}
			if hint == "" {
				hint = mimeType
			}
			return n.fromBytes(ctx, data, hint, req.FileName)
		}
		return n.fromURL(req.ImageURL, hint, req.FileName)
	}

	data := req.ImageData
	if strings.HasPrefix(strings.ToLower(data), "data:") {
		mimeType, decoded, err := parseDataURL(data)
		if err != nil {
			return nil, err
		}
		if hint == "" {
			hint = mimeType
		}
		return n.fromBytes(ctx, decoded, hint, req.FileName)
	}
	decoded, err := decodeBase64(data)
	if err != nil {
		return nil, apperr.New(apperr.KindSchemaValidation, "imageData is not valid base64").
			WithDetails("imageData: " + err.Error())
	}
	return n.fromBytes(ctx, decoded, hint, req.FileName)
}

func (n *Normalizer) check(req *DocumentRequest) error {
	err := n.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindSchemaValidation, err, "invalid request")
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describe(fe))
	}
	return apperr.New(apperr.KindSchemaValidation, "invalid document source").WithDetails(details...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required_without":
		return fmt.Sprintf("%s: required when no other image source is given", fe.Field())
	case "excluded_with":
		return fmt.Sprintf("%s: supply either imageUrl or imageData, not both", fe.Field())
	case "max":
		return fmt.Sprintf("%s: longer than %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s validation", fe.Field(), fe.Tag())
	}
}

func (n *Normalizer) fromURL(raw, hint, fileName string) (*Document, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, apperr.New(apperr.KindSchemaValidation, "imageUrl is not a valid absolute URL").
			WithDetails("imageUrl: malformed")
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return nil, apperr.New(apperr.KindSchemaValidation, "imageUrl must use https").
				WithDetails("imageUrl: http is only accepted for localhost")
		}
	default:
		return nil, apperr.New(apperr.KindSchemaValidation, "imageUrl has an unsupported scheme %q", u.Scheme).
			WithDetails("imageUrl: scheme must be https")
	}

	ext := strings.ToLower(path.Ext(u.Path))
	mimeType := hint
	if mimeType == "" {
		mimeType = mimeFromExt(ext)
	}
	if mimeType == mimePDF || ext == ".pdf" {
		return nil, apperr.New(apperr.KindSchemaValidation, "PDF documents must be sent inline").
			WithDetails("imageUrl: send PDFs as imageData or a data: URL so they can be rendered")
	}
	if mimeType != "" {
		if _, ok := supportedImages[mimeType]; !ok {
			return nil, unsupported(mimeType)
		}
	}

	if fileName == "" {
		fileName = path.Base(u.Path)
	}
	return &Document{ImageURL: u.String(), FileName: fileName, MIMEType: mimeType}, nil
}

func (n *Normalizer) fromBytes(ctx context.Context, data []byte, hint, fileName string) (*Document, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindSchemaValidation, "document is empty").WithDetails("imageData: empty")
	}
	if n.cfg.MaxDocumentBytes > 0 && int64(len(data)) > n.cfg.MaxDocumentBytes {
		return nil, apperr.New(apperr.KindSchemaValidation, "document exceeds %d bytes", n.cfg.MaxDocumentBytes).
			WithDetails(fmt.Sprintf("imageData: %d bytes", len(data)))
	}

	mimeType := sniff(data, hint, fileName)
	converted := false

	if mimeType == mimePDF {
		if n.renderer == nil {
			return nil, apperr.New(apperr.KindConversionFailure, "invalid document: PDF conversion is not available")
		}
		image, imageType, err := n.renderer.RenderFirstPage(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperr.Wrap(apperr.KindCanceled, ctx.Err(), "request canceled")
			}
			n.logger.Warn("PDF conversion failed", zap.String("file_name", fileName), zap.Error(err))
			return nil, apperr.Wrap(apperr.KindConversionFailure, err, "invalid document")
		}
		data, mimeType, converted = image, imageType, true
		if fileName != "" {
			fileName = strings.TrimSuffix(fileName, path.Ext(fileName)) + supportedImages[mimeType]
		}
	}

	if _, ok := supportedImages[mimeType]; !ok {
		return nil, unsupported(mimeType)
	}
	if fileName == "" {
		fileName = "document" + supportedImages[mimeType]
	}

	return &Document{
		ImageURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		FileName:  fileName,
		MIMEType:  mimeType,
		Converted: converted,
	}, nil
}

// sniff prefers what the content says when it is a type we handle, then
// the caller's hint, then the file extension.
func sniff(data []byte, hint, fileName string) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if _, ok := supportedImages[m.String()]; ok || m.Is(mimePDF) {
			return baseType(m.String())
		}
	}
	if hint != "" {
		return hint
	}
	if byExt := mimeFromExt(strings.ToLower(path.Ext(fileName))); byExt != "" {
		return byExt
	}
	return baseType(detected.String())
}

func parseTypeHint(hint string) (string, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return "", nil
	}
	if alias, ok := typeAliases[strings.TrimPrefix(hint, ".")]; ok {
		return alias, nil
	}
	hint = baseType(hint)
	if hint == "image/jpg" {
		hint = "image/jpeg"
	}
	if _, ok := supportedImages[hint]; ok || hint == mimePDF {
		return hint, nil
	}
	return "", unsupported(hint)
}

func parseDataURL(raw string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok || !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return "", nil, apperr.New(apperr.KindSchemaValidation, "data URL must be base64 encoded").
			WithDetails("imageUrl: expected data:<mime>;base64,<payload>")
	}
	mimeType, err := parseTypeHint(strings.TrimSuffix(meta[:len(meta)-len(";base64")], ";"))
	if err != nil {
		return "", nil, err
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", nil, apperr.New(apperr.KindSchemaValidation, "data URL payload is not valid base64").
			WithDetails("imageUrl: " + err.Error())
	}
	return mimeType, data, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func mimeFromExt(ext string) string {
	return typeAliases[strings.TrimPrefix(ext, ".")]
}

func baseType(m string) string {
	t, _, _ := strings.Cut(m, ";")
	return strings.TrimSpace(strings.ToLower(t))
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func unsupported(mimeType string) error {
	return apperr.New(apperr.KindSchemaValidation, "unsupported document type %q", mimeType).
		WithDetails("imageType: must be one of image/png, image/jpeg, image/gif, image/webp or application/pdf")
}
