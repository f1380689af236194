package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType is the kind of financial record the backend accepts.
type TransactionType string

const (
	TypeExpense TransactionType = "EXPENSE"
	TypeIncome  TransactionType = "INCOME"
)

// Frequency is the closed enumeration of recurring-schedule periods.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// Date is a calendar date serialized as YYYY-MM-DD, the way the backend
// represents due dates.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date from a point in time, truncated to the calendar day.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// TransactionCreate is the request body for POST /transactions. SyncID is a
// client-generated idempotency key: the backend deduplicates on it, so an
// accidental resend of the same draft cannot create a second record.
type TransactionCreate struct {
	AmountOriginal float64         `json:"amount_original"`
	CurrencyCode   string          `json:"currency_code"`
	Type           TransactionType `json:"type"`
	Category       string          `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	TrxDate        time.Time       `json:"trx_date"`
	IsInvoiced     bool            `json:"is_invoiced"`
	SyncID         uuid.UUID       `json:"sync_id"`
}

// TransactionRecord is the committed, authoritative financial entry as the
// backend returns it. The client never mutates one after commit.
type TransactionRecord struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"user_id"`
	AmountOriginal     float64   `json:"amount_original"`
	CurrencyCode       string    `json:"currency_code"`
	ExchangeRate       float64   `json:"exchange_rate"`
	AmountBase         float64   `json:"amount_base"`
	TrxDate            time.Time `json:"trx_date"`
	Type               string    `json:"type"`
	Category           string    `json:"category,omitempty"`
	Description        string    `json:"description,omitempty"`
	AttachmentURL      string    `json:"attachment_url,omitempty"`
	AttachmentThumbURL string    `json:"attachment_thumb_url,omitempty"`
	IsInvoiced         bool      `json:"is_invoiced"`
	SyncID             uuid.UUID `json:"sync_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// RecurringSchedule is a stored obligation the backend advances on
// execution. Never deleted outright; deactivated instead.
type RecurringSchedule struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Amount           float64   `json:"amount"`
	CurrencyCode     string    `json:"currency_code"`
	Category         string    `json:"category,omitempty"`
	Frequency        Frequency `json:"frequency"`
	NextDueDate      Date      `json:"next_due_date"`
	LastExecutedDate *Date     `json:"last_executed_date,omitempty"`
	IsAutomatic      bool      `json:"is_automatic"`
	IsActive         bool      `json:"is_active"`
}

// AutoExecuteResult is the typed response of the bulk auto-execution call.
type AutoExecuteResult struct {
	ExecutedCount       int `json:"executed_count"`
	TransactionsCreated int `json:"transactions_created"`
}

// ConvertResult is the typed response of the overdue-to-debt conversion call.
type ConvertResult struct {
	ConvertedCount int `json:"converted_count"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend API error (status %d)", e.Status)
	}
	return fmt.Sprintf("backend API error (status %d): %s", e.Status, e.Detail)
}
