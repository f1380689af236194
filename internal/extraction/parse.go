package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// knownCurrencies is the set of ISO codes the tracker handles. An extracted
// code outside this set falls back to the configured base currency.
var knownCurrencies = map[string]bool{
	"MXN": true, "USD": true, "EUR": true, "GBP": true, "CAD": true,
	"JPY": true, "BRL": true, "ARS": true, "COP": true, "CLP": true,
	"PEN": true, "CHF": true, "AUD": true, "CNY": true,
}

// rawResult mirrors the JSON schema the prompt asks for. Pointer fields
// distinguish "absent" from "zero".
type rawResult struct {
	MerchantName *string       `json:"merchant_name"`
	TotalAmount  *float64      `json:"total_amount"`
	Currency     string        `json:"currency"`
	Date         string        `json:"date"`
	Category     string        `json:"category"`
	LineItems    []rawLineItem `json:"line_items"`
	InvoiceData  *InvoiceData  `json:"invoice_data"`
}

type rawLineItem struct {
	Name      string   `json:"name"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
	Total     *float64 `json:"total"`
}

// ParseResult validates an inference response and normalizes it into a
// Result. The response text may be wrapped in a markdown code fence.
// baseCurrency fills in an absent or unrecognized currency; now anchors the
// default date.
func ParseResult(text, baseCurrency string, now time.Time) (*Result, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, &Error{Kind: MalformedResponse, Err: fmt.Errorf("no JSON object found in response")}
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, &Error{Kind: MalformedResponse, Err: fmt.Errorf("invalid JSON object in response")}
	}

	text = text[startIdx : endIdx+1]

	var raw rawResult
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &Error{Kind: MalformedResponse, Err: fmt.Errorf("unmarshaling json: %w", err)}
	}

	// total_amount is the one field whose absence aborts the result
	if raw.TotalAmount == nil {
		return nil, &Error{Kind: IncompleteData, Err: fmt.Errorf("total_amount missing from response")}
	}
	if raw.MerchantName == nil {
		return nil, &Error{Kind: IncompleteData, Err: fmt.Errorf("merchant_name missing from response")}
	}

	merchant := strings.TrimSpace(*raw.MerchantName)
	if merchant == "" {
		merchant = "Unknown"
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if !knownCurrencies[currency] {
		currency = baseCurrency
	}

	result := &Result{
		MerchantName: merchant,
		TotalAmount:  decimal.NewFromFloat(*raw.TotalAmount),
		Currency:     currency,
		Date:         parseDate(raw.Date, now),
		Category:     ParseCategory(raw.Category),
		LineItems:    make([]LineItem, 0, len(raw.LineItems)),
		Invoice:      raw.InvoiceData,
	}

	for _, item := range raw.LineItems {
		result.LineItems = append(result.LineItems, LineItem{
			Name:      strings.TrimSpace(item.Name),
			Quantity:  toDecimal(item.Quantity),
			UnitPrice: toDecimal(item.UnitPrice),
			Total:     toDecimal(item.Total),
		})
	}

	return result, nil
}

// parseDate tries the calendar formats receipts actually carry; anything
// unparseable defaults to today.
func parseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}

	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d
		}
	}
	return now
}

func toDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
