package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/casafin/expense-capture/internal/imaging"
)

const geminiTimeout = 30 * time.Second

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	baseCurrency string
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey, modelName, baseCurrency string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:       client,
		model:        client.GenerativeModel(modelName),
		baseCurrency: baseCurrency,
	}, nil
}

// Extract sends the receipt image to Gemini and validates the response.
// The call is bounded so the capture session is never left waiting.
func (g *Gemini) Extract(ctx context.Context, img *imaging.NormalizedImage) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	// Normalized images are always JPEG
	parts := []genai.Part{
		genai.ImageData("jpeg", img.Data),
		genai.Text(extractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &Error{Kind: RequestFailed, Err: fmt.Errorf("generating content: %w", err)}
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Kind: MalformedResponse, Err: fmt.Errorf("no response from gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return ParseResult(responseText.String(), g.baseCurrency, time.Now())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
