package extraction

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the closed set of expense categories the extraction contract
// may return. Anything else normalizes to CategoryOther.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryGroceries     Category = "Groceries"
	CategoryTransport     Category = "Transport"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryEducation     Category = "Education"
	CategoryClothing      Category = "Clothing"
	CategoryHome          Category = "Home"
	CategoryOther         Category = "Other"
)

// Categories lists every valid category, in prompt order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryGroceries,
		CategoryTransport,
		CategoryUtilities,
		CategoryEntertainment,
		CategoryHealth,
		CategoryEducation,
		CategoryClothing,
		CategoryHome,
		CategoryOther,
	}
}

// ParseCategory maps free-form model output onto the closed set.
func ParseCategory(s string) Category {
	for _, c := range Categories() {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// LineItem is one purchased item as read off the receipt. Quantity, unit
// price and total are nullable: many receipts only print a name and price.
type LineItem struct {
	Name      string           `json:"name"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Total     *decimal.Decimal `json:"total,omitempty"`
}

// InvoiceData carries the fiscal-invoice fields some receipts print.
// All fields are optional.
type InvoiceData struct {
	TaxID     string `json:"tax_id,omitempty"`
	LegalName string `json:"legal_name,omitempty"`
	Address   string `json:"address,omitempty"`
	Folio     string `json:"folio,omitempty"`
}

// Result is the validated output of an extraction call. A Result is only
// ever constructed through ParseResult; a raw inference response that fails
// the required-field checks produces an Error, never a partial Result.
type Result struct {
	MerchantName string
	TotalAmount  decimal.Decimal
	Currency     string
	Date         time.Time
	Category     Category
	LineItems    []LineItem
	Invoice      *InvoiceData
}

// ErrorKind classifies extraction failures. The caller's recovery path is
// identical for every kind (retry capture or enter manually); the kinds exist
// for logging and diagnostics.
type ErrorKind string

const (
	// MalformedResponse: the inference response could not be parsed as JSON
	MalformedResponse ErrorKind = "malformed_response"
	// IncompleteData: required fields were absent from the parsed payload
	IncompleteData ErrorKind = "incomplete_data"
	// RequestFailed: network error, timeout or non-2xx from the inference endpoint
	RequestFailed ErrorKind = "request_failed"
)

// Error is a classified extraction failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed: %s", e.Kind)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the extraction error kind, or "" for non-extraction errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
