package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"
)

// ClientConfig represents the configuration for the tracker backend client.
type ClientConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration // Default: 30 seconds
}

// Client is an expense-tracker backend API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// NewClient creates a new backend API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     config.BaseURL,
		accessToken: config.AccessToken,
	}
}

// SetAccessToken sets the bearer token for API requests.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// CreateTransaction creates a financial record. The backend responds 201
// with the created record, including the computed base-currency amount.
func (c *Client) CreateTransaction(ctx context.Context, create TransactionCreate) (*TransactionRecord, error) {
	body, err := json.Marshal(create)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/transactions", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var record TransactionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &record, nil
}

// UploadAttachment attaches a receipt image to an existing transaction via
// multipart upload and returns the updated record.
func (c *Client) UploadAttachment(ctx context.Context, transactionID uuid.UUID, filename string, data []byte, contentType string) (*TransactionRecord, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	url := fmt.Sprintf("%s/transactions/%s/attachment", c.baseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var record TransactionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &record, nil
}

// ListRecurring lists the active recurring schedules.
func (c *Client) ListRecurring(ctx context.Context) ([]RecurringSchedule, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/recurring-expenses", c.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var schedules []RecurringSchedule
	if err := json.NewDecoder(resp.Body).Decode(&schedules); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return schedules, nil
}

// ExecuteRecurring executes a single schedule immediately, creating one
// transaction and advancing the due date server-side.
func (c *Client) ExecuteRecurring(ctx context.Context, scheduleID uuid.UUID) (*TransactionRecord, error) {
	url := fmt.Sprintf("%s/recurring-expenses/%s/execute", c.baseURL, scheduleID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var record TransactionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &record, nil
}

// AutoExecuteRecurring triggers server-side execution of every due automatic
// schedule. The backend owns due-date advancement; nothing is mutated
// client-side, so a retried call cannot double-advance a schedule.
func (c *Client) AutoExecuteRecurring(ctx context.Context) (*AutoExecuteResult, error) {
	url := fmt.Sprintf("%s/recurring-expenses/auto-execute", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result AutoExecuteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ExecutedCount < 0 || result.TransactionsCreated < result.ExecutedCount {
		return nil, fmt.Errorf("inconsistent auto-execute result: executed=%d created=%d",
			result.ExecutedCount, result.TransactionsCreated)
	}

	return &result, nil
}

// ConvertOverdueToDebts asks the backend to convert every overdue manual
// obligation into a debt record. A missed manual bill becomes a liability,
// not a transaction.
func (c *Client) ConvertOverdueToDebts(ctx context.Context) (*ConvertResult, error) {
	url := fmt.Sprintf("%s/debts/convert-overdue", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result ConvertResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ConvertedCount < 0 {
		return nil, fmt.Errorf("inconsistent conversion result: converted=%d", result.ConvertedCount)
	}

	return &result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Accept", "application/json")
}

// parseError decodes an error response body into an APIError.
func (c *Client) parseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
	} else if len(body) > 0 {
		apiErr.Detail = string(body)
	}

	return apiErr
}
