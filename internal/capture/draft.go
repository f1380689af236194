package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casafin/expense-capture/internal/backend"
	"github.com/casafin/expense-capture/internal/extraction"
)

// Draft is the user-editable, pre-commit transaction staged by a capture
// session. It exists between extraction (or manual entry) and commit, and is
// destroyed on commit or cancel. SyncID is generated once at creation and
// rides along to the backend as the idempotency key.
type Draft struct {
	ID          uuid.UUID               `json:"id"`
	SyncID      uuid.UUID               `json:"sync_id"`
	Type        backend.TransactionType `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	Currency    string                  `json:"currency"`
	Category    extraction.Category     `json:"category"`
	Description string                  `json:"description"`
	Date        time.Time               `json:"date"`
	IsInvoiced  bool                    `json:"is_invoiced"`
	ImagePath   string                  `json:"image_path,omitempty"`
}

// newDraftFromExtraction seeds a draft from a validated extraction result.
// Receipts are always expenses; the merchant name becomes the description.
func newDraftFromExtraction(result *extraction.Result, imagePath string) *Draft {
	return &Draft{
		ID:          uuid.New(),
		SyncID:      uuid.New(),
		Type:        backend.TypeExpense,
		Amount:      result.TotalAmount,
		Currency:    result.Currency,
		Category:    result.Category,
		Description: result.MerchantName,
		Date:        result.Date,
		ImagePath:   imagePath,
	}
}

// newManualDraft creates a blank draft for manual entry.
func newManualDraft(baseCurrency string, now time.Time) *Draft {
	return &Draft{
		ID:       uuid.New(),
		SyncID:   uuid.New(),
		Type:     backend.TypeExpense,
		Amount:   decimal.Zero,
		Currency: baseCurrency,
		Category: extraction.CategoryOther,
		Date:     now,
	}
}

// DraftUpdate carries the editable fields of a draft; nil means "leave as is".
type DraftUpdate struct {
	Type        *backend.TransactionType `json:"type,omitempty"`
	Amount      *decimal.Decimal         `json:"amount,omitempty"`
	Currency    *string                  `json:"currency,omitempty"`
	Category    *extraction.Category     `json:"category,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Date        *time.Time               `json:"date,omitempty"`
	IsInvoiced  *bool                    `json:"is_invoiced,omitempty"`
}

// apply merges the update into the draft.
func (d *Draft) apply(update DraftUpdate) {
	if update.Type != nil {
		d.Type = *update.Type
	}
	if update.Amount != nil {
		d.Amount = *update.Amount
	}
	if update.Currency != nil {
		d.Currency = *update.Currency
	}
	if update.Category != nil {
		d.Category = *update.Category
	}
	if update.Description != nil {
		d.Description = *update.Description
	}
	if update.Date != nil {
		d.Date = *update.Date
	}
	if update.IsInvoiced != nil {
		d.IsInvoiced = *update.IsInvoiced
	}
}

// Validate checks the draft's financial fields before commit. A draft that
// fails validation never reaches the network.
func (d *Draft) Validate() error {
	if !d.Amount.GreaterThan(decimal.Zero) {
		return fmt.Errorf("amount must be greater than zero")
	}
	if d.Type != backend.TypeExpense && d.Type != backend.TypeIncome {
		return fmt.Errorf("invalid transaction type: %s", d.Type)
	}
	if len(d.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", d.Currency)
	}
	if d.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

// toCreate maps the draft's financial fields onto the creation request.
func (d *Draft) toCreate() backend.TransactionCreate {
	return backend.TransactionCreate{
		AmountOriginal: d.Amount.InexactFloat64(),
		CurrencyCode:   d.Currency,
		Type:           d.Type,
		Category:       string(d.Category),
		Description:    d.Description,
		TrxDate:        d.Date,
		IsInvoiced:     d.IsInvoiced,
		SyncID:         d.SyncID,
	}
}
