package extraction

import (
	"context"

	"github.com/casafin/expense-capture/internal/imaging"
)

// extractionPrompt is the shared instruction used by all inference providers.
// It pins the exact JSON schema ParseResult expects back.
const extractionPrompt = `You are analyzing a photo of a paper receipt or invoice. Carefully read all text in the image and extract the following information:

1. **Merchant Name**: The store or business name, usually the largest text at the top of the receipt.

2. **Total Amount**: The final total or amount due, usually at the bottom, labeled "TOTAL", "Amount Due", "Grand Total" or similar. Extract only the numeric value (e.g. 125.50).

3. **Currency**: The ISO 4217 currency code if determinable from symbols or text (e.g. "MXN", "USD", "EUR").

4. **Date**: The transaction date, converted to ISO 8601 format (YYYY-MM-DD).

5. **Category**: Classify the purchase as exactly one of: Food, Groceries, Transport, Utilities, Entertainment, Health, Education, Clothing, Home, Other.

6. **Line Items**: Each purchased item with its name and, when printed, quantity, unit price and line total.

7. **Invoice Data**: If the receipt carries fiscal invoice fields, extract the tax id, legal name, address and folio number.

Return ONLY valid JSON in this exact format:
{
  "merchant_name": "Store Name",
  "total_amount": 0.00,
  "currency": "MXN",
  "date": "YYYY-MM-DD",
  "category": "Other",
  "line_items": [{"name": "Item", "quantity": 1, "unit_price": 0.00, "total": 0.00}],
  "invoice_data": {"tax_id": null, "legal_name": null, "address": null, "folio": null}
}

Important:
- total_amount must be a number (not a string)
- The date must be in YYYY-MM-DD format
- If you cannot find a field, use null for that field
- line_items may be an empty array
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// Extractor defines the interface for vision-inference extraction. One
// request per capture attempt, no built-in retries: every failure surfaces
// to the caller, whose recovery path is manual entry either way.
type Extractor interface {
	// Extract sends the normalized receipt image to the inference service
	// and returns the validated extraction result.
	Extract(ctx context.Context, img *imaging.NormalizedImage) (*Result, error)
	// Close releases provider resources
	Close() error
}
