package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// amount accepts a JSON number or a printed money string such as "$1,200.00"
type amount struct {
	value decimal.Decimal
	valid bool
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = amount{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = cleanAmount(s)
		if raw == "" {
			*a = amount{}
			return nil
		}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(data), err)
	}
	*a = amount{value: d, valid: true}
	return nil
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"USD", "EUR", "GBP", "CNY", "$", "€", "£", "¥", ",", "%", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	return s
}

func (a amount) ptr() *decimal.Decimal {
	if !a.valid {
		return nil
	}
	v := a.value
	return &v
}

func (a amount) orZero() decimal.Decimal {
	if !a.valid {
		return decimal.Zero
	}
	return a.value
}

type lineItemPayload struct {
	Description string `json:"description"`
	Quantity    amount `json:"quantity"`
	Unit        string `json:"unit"`
	UnitPrice   amount `json:"unitPrice"`
	TotalPrice  amount `json:"totalPrice"`
}

type invoicePayload struct {
	InvoiceNumber   string             `json:"invoiceNumber"`
	Date            string             `json:"date"`
	DueDate         string             `json:"dueDate"`
	VendorName      string             `json:"vendorName"`
	PaymentTerms    string             `json:"paymentTerms"`
	Subtotal        amount             `json:"subtotal"`
	TaxAmount       amount             `json:"taxAmount"`
	TaxRate         amount             `json:"taxRate"`
	TotalAmount     amount             `json:"totalAmount"`
	LineItems       []lineItemPayload  `json:"lineItems"`
	Confidence      *float64           `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence"`
	Reasoning       string             `json:"reasoning"`
}

func (p *invoicePayload) toDraft() *entity.InvoiceDraft {
	draft := &entity.InvoiceDraft{
		InvoiceNumber: strings.TrimSpace(p.InvoiceNumber),
		Date:          optionalDate(p.Date),
		DueDate:       optionalDate(p.DueDate),
		VendorName:    strings.TrimSpace(p.VendorName),
		PaymentTerms:  strings.TrimSpace(p.PaymentTerms),
		Subtotal:      p.Subtotal.ptr(),
		TaxAmount:     p.TaxAmount.ptr(),
		TaxRate:       p.TaxRate.ptr(),
		TotalAmount:   p.TotalAmount.ptr(),
		Confidence:    overallConfidence(p.Confidence, p.FieldConfidence),
	}

	for _, item := range p.LineItems {
		draft.LineItems = append(draft.LineItems, entity.LineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity.orZero(),
			UnitPrice:   item.UnitPrice.orZero(),
			TotalPrice:  item.TotalPrice.orZero(),
			Unit:        strings.TrimSpace(item.Unit),
		})
	}

	if len(p.FieldConfidence) > 0 {
		draft.FieldConfidence = make(map[string]float64, len(p.FieldConfidence))
		for field, score := range p.FieldConfidence {
			draft.FieldConfidence[field] = clamp(score)
		}
	}

	return draft
}

type pricingPayload struct {
	Item       string `json:"item"`
	Price      amount `json:"price"`
	Unit       string `json:"unit"`
	Conditions string `json:"conditions"`
}

type discountPayload struct {
	Type       string `json:"type"`
	Amount     amount `json:"amount"`
	Conditions string `json:"conditions"`
}

type contractPayload struct {
	Vendor   entity.VendorInfo `json:"vendor"`
	Contract struct {
		Title          string            `json:"title"`
		ContractNumber string            `json:"contractNumber"`
		TotalValue     amount            `json:"totalValue"`
		PaymentTerms   string            `json:"paymentTerms"`
		Pricing        []pricingPayload  `json:"pricing"`
		Discounts      []discountPayload `json:"discounts"`
		TaxRate        amount            `json:"taxRate"`
		EffectiveDate  string            `json:"effectiveDate"`
		ExpirationDate string            `json:"expirationDate"`
	} `json:"contract"`
	Confidence      *float64           `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence"`
}

func (p *contractPayload) toExtraction() *entity.VendorContractExtraction {
	c := p.Contract
	terms := entity.ContractTerms{
		PaymentTerms:   strings.TrimSpace(c.PaymentTerms),
		TaxRate:        c.TaxRate.ptr(),
		ExpirationDate: optionalDate(c.ExpirationDate),
	}
	if d := optionalDate(c.EffectiveDate); d != nil {
		terms.EffectiveDate = *d
	}
	for _, price := range c.Pricing {
		terms.Pricing = append(terms.Pricing, entity.PricingTerm{
			Item:       strings.TrimSpace(price.Item),
			Price:      price.Price.orZero(),
			Unit:       strings.TrimSpace(price.Unit),
			Conditions: strings.TrimSpace(price.Conditions),
		})
	}
	for _, discount := range c.Discounts {
		terms.Discounts = append(terms.Discounts, entity.Discount{
			Type:       strings.ToLower(strings.TrimSpace(discount.Type)),
			Amount:     discount.Amount.orZero(),
			Conditions: strings.TrimSpace(discount.Conditions),
		})
	}

	result := &entity.VendorContractExtraction{
		Success: true,
		Vendor:  p.Vendor,
		Contract: entity.ExtractedContract{
			Title:          strings.TrimSpace(c.Title),
			ContractNumber: strings.TrimSpace(c.ContractNumber),
			TotalValue:     c.TotalValue.ptr(),
			Terms:          terms,
		},
		Confidence: overallConfidence(p.Confidence, p.FieldConfidence),
	}
	if len(p.FieldConfidence) > 0 {
		result.FieldConfidence = make(map[string]float64, len(p.FieldConfidence))
		for field, score := range p.FieldConfidence {
			result.FieldConfidence[field] = clamp(score)
		}
	}
	return result
}

func optionalDate(s string) *entity.Date {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := entity.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

// overallConfidence is the reported overall score, or the mean of the field
// scores when the model left it out. With neither it is zero, which sends the
// result to manual review.
func overallConfidence(reported *float64, fields map[string]float64) float64 {
	if reported != nil {
		return clamp(*reported)
	}
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, v := range fields {
		sum += clamp(v)
	}
	return sum / float64(len(fields))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// decodeContent unmarshals a model reply into v. Replies wrapped in markdown
// code fences or surrounded by prose are unwrapped first.
func decodeContent(content string, v interface{}) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// extractJSON returns the outermost {...} span of s, preferring a ```json fence
func extractJSON(s string) string {
	if start := strings.Index(s, "```json"); start >= 0 {
		rest := s[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
