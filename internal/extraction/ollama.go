package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/casafin/expense-capture/internal/imaging"
)

// Ollama can be slower than hosted inference, especially for vision models
const ollamaTimeout = 120 * time.Second

// Ollama implements the Extractor interface against a self-hosted Ollama
// instance. Recommended vision models: llava:1.6, llava:latest, qwen2-vl:7b.
type Ollama struct {
	baseURL      string
	model        string
	baseCurrency string
	client       *http.Client
}

// NewOllama creates a new Ollama Extractor instance
func NewOllama(baseURL, modelName, baseCurrency string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL:      baseURL,
		model:        modelName,
		baseCurrency: baseCurrency,
		client: &http.Client{
			Timeout: ollamaTimeout,
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends the receipt image to Ollama and validates the response
func (o *Ollama) Extract(ctx context.Context, img *imaging.NormalizedImage) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: extractionPrompt,
			},
		},
		Images: []string{img.Base64()},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Kind: RequestFailed, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &Error{Kind: RequestFailed, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: RequestFailed, Err: fmt.Errorf("calling ollama API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &Error{Kind: RequestFailed, Err: fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &Error{Kind: MalformedResponse, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return ParseResult(chatResp.Message.Content, o.baseCurrency, time.Now())
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
